package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/revision-warden/internal/wire"
)

var populateListen time.Duration

var populateCmd = &cobra.Command{
	Use:   "populate [feed]",
	Short: "Listen to the scoring stream and move qualifying revisions into a feed",
	Long: `Subscribes to the scoring stream of the feed's wiki for the given duration,
then inserts every buffered candidate that is in scope and above the feed's
score threshold. The feed scope must have been crawled before.

Examples:
  warden-cli populate covid19 --listen 2m`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		app, cleanup, err := wire.InitializeApp()
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer cleanup()

		def, err := app.Engine.Feed(args[0])
		if err != nil {
			return err
		}

		titleColor.Printf("Listening to %s for %s\n", def.Wiki, populateListen)
		listenCtx, cancel := context.WithTimeout(context.Background(), populateListen)
		defer cancel()
		if err := app.Ingestor.Run(listenCtx, []string{def.Wiki}); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("stream ingestion failed: %w", err)
		}
		dimColor.Printf("   buffered %d candidates\n", app.Ingestor.Buffer(def.Wiki).Len())

		n, err := app.Engine.PopulateFeedRevisions(context.Background(), def.Name, def.Wiki)
		if err != nil {
			return fmt.Errorf("failed to populate %s: %w", def.Name, err)
		}
		if n == 0 {
			warnColor.Printf("No new revisions for %s\n", def.Name)
			return nil
		}
		successColor.Printf("Inserted %d revisions into %s\n", n, def.Name)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	populateCmd.Flags().DurationVar(&populateListen, "listen", time.Minute, "how long to listen to the stream")
	rootCmd.AddCommand(populateCmd)
}
