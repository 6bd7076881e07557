package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/revision-warden/internal/wire"
)

var crawlTimeout time.Duration

var crawlCmd = &cobra.Command{
	Use:   "crawl [feed]",
	Short: "Refresh the category scope of a feed",
	Long: `Crawls the category tree of the feed's root category and replaces the
stored scope. A failed crawl leaves the previous scope in place.

Examples:
  warden-cli crawl covid19
  warden-cli crawl us2020 --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), crawlTimeout)
		defer cancel()

		app, cleanup, err := wire.InitializeApp()
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w\n\nTip: Check that your config.yaml exists and is valid", err)
		}
		defer cleanup()

		def, err := app.Engine.Feed(args[0])
		if err != nil {
			return err
		}

		titleColor.Printf("Crawling %s on %s\n", def.RootCategory, def.Wiki)
		start := time.Now()
		if err := app.Engine.TraverseCategoryTree(ctx, def.Name, def.Wiki, def.RootCategory); err != nil {
			errorColor.Printf("crawl failed, previous scope kept: %v\n", err)
			return err
		}

		scope, err := app.Store.Scope(ctx, def.Name)
		if err != nil {
			return fmt.Errorf("failed to read new scope: %w", err)
		}
		successColor.Printf("Scope of %s now has %d pages", def.Name, scope.Size())
		dimColor.Printf(" (%s)\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	crawlCmd.Flags().DurationVar(&crawlTimeout, "timeout", 15*time.Minute, "overall crawl timeout")
	rootCmd.AddCommand(crawlCmd)
}
