package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/revision-warden/internal/wire"
)

var (
	fixFeedName string
	fixFeedWiki string
)

var fixFeedCmd = &cobra.Command{
	Use:   "fix-feed",
	Short: "Fill in missing feed and wiki on judgements stored by old clients",
	Long: `Older clients did not send the feed or the wiki with a judgement. This
command assigns the given defaults to every stored judgement lacking them.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp()
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer cleanup()

		res, err := app.Store.BackfillDefaults(ctx, fixFeedName, fixFeedWiki)
		if err != nil {
			return fmt.Errorf("failed to backfill judgements: %w", err)
		}
		if outputJSON {
			return printJSON(res)
		}
		successColor.Printf("Set feed=%q on %d judgements\n", fixFeedName, res.FeedFixed)
		successColor.Printf("Set wiki=%q on %d judgements\n", fixFeedWiki, res.WikiFixed)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	fixFeedCmd.Flags().StringVar(&fixFeedName, "feed", "index", "feed assigned to judgements without one")
	fixFeedCmd.Flags().StringVar(&fixFeedWiki, "wiki", "enwiki", "wiki assigned to judgements without one")
	rootCmd.AddCommand(fixFeedCmd)
}
