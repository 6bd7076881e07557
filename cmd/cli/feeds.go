package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/wire"
)

type feedStatus struct {
	Name            string    `json:"name"`
	Wiki            string    `json:"wiki"`
	RootCategory    string    `json:"root_category"`
	ScopePages      int       `json:"scope_pages"`
	Candidates      int       `json:"candidates"`
	LastRefreshedAt time.Time `json:"last_refreshed_at,omitzero"`
}

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Shows the configured feeds with their scope and candidate counts",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp()
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		var statuses []feedStatus
		for _, f := range app.Cfg.Feeds {
			st := feedStatus{Name: f.Name, Wiki: f.Wiki, RootCategory: f.RootCategory}
			scope, err := app.Store.Scope(ctx, f.Name)
			switch {
			case err == nil:
				st.ScopePages = scope.Size()
				st.LastRefreshedAt = scope.LastRefreshedAt
			case !errors.Is(err, core.ErrNotFound):
				return fmt.Errorf("failed to load scope of %s: %w", f.Name, err)
			}
			candidates, err := app.Store.ListCandidates(ctx, f.Name, 0)
			if err != nil {
				return fmt.Errorf("failed to list candidates of %s: %w", f.Name, err)
			}
			st.Candidates = len(candidates)
			statuses = append(statuses, st)
		}

		if outputJSON {
			return printJSON(statuses)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "FEED\tWIKI\tROOT CATEGORY\tPAGES\tCANDIDATES\tLAST REFRESHED")
		for _, st := range statuses {
			refreshed := "never"
			if !st.LastRefreshedAt.IsZero() {
				refreshed = st.LastRefreshedAt.Format(time.RFC822)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				st.Name, st.Wiki, st.RootCategory, st.ScopePages, st.Candidates, refreshed)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	rootCmd.AddCommand(feedsCmd)
}
