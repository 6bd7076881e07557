package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/storage"
	"github.com/sevigo/revision-warden/internal/wire"
)

var (
	interactionsWiki      string
	interactionsFeed      string
	interactionsUser      string
	interactionsJudgement string
	interactionsSince     time.Duration
	interactionsLimit     int
)

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "List recorded judgements, newest first",
	Long: `Lists stored judgements filtered by wiki, feed, reviewer or verdict.

Examples:
  warden-cli interactions --feed covid19 --since 24h
  warden-cli interactions --judgement ShouldRevert --limit 20 --json`,
	RunE: runInteractions,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	interactionsCmd.Flags().StringVar(&interactionsWiki, "wiki", "", "only this wiki")
	interactionsCmd.Flags().StringVar(&interactionsFeed, "feed", "", "only this feed")
	interactionsCmd.Flags().StringVar(&interactionsUser, "user", "", "only this wiki user name")
	interactionsCmd.Flags().StringVar(&interactionsJudgement, "judgement", "", "LooksGood, NotSure or ShouldRevert")
	interactionsCmd.Flags().DurationVar(&interactionsSince, "since", 0, "only judgements newer than this")
	interactionsCmd.Flags().IntVar(&interactionsLimit, "limit", 50, "maximum number of rows")
	rootCmd.AddCommand(interactionsCmd)
}

func runInteractions(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	filter := storage.InteractionFilter{
		Wiki:         interactionsWiki,
		Feed:         interactionsFeed,
		WikiUserName: interactionsUser,
		Limit:        interactionsLimit,
	}
	if interactionsJudgement != "" {
		j, err := core.ParseJudgement(interactionsJudgement)
		if err != nil {
			return err
		}
		filter.Judgement = j
	}
	if interactionsSince > 0 {
		filter.Since = time.Now().Add(-interactionsSince)
	}

	app, cleanup, err := wire.InitializeApp()
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer cleanup()

	interactions, err := app.Store.ListInteractions(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list interactions: %w", err)
	}

	if outputJSON {
		return printJSON(interactions)
	}
	if len(interactions) == 0 {
		warnColor.Println("No judgements match.")
		return nil
	}

	counts := make(map[core.Judgement]int)
	for _, i := range interactions {
		counts[i.Judgement]++
		judgementColor(i.Judgement).Printf("%-13s", i.Judgement)
		boldColor.Printf(" %s:%d", i.Wiki, i.RevisionID)
		fmt.Printf(" %s", i.Title)
		dimColor.Printf("  by %s in %s at %s\n", i.ReviewerName(), feedLabel(i.Feed), i.Timestamp.Format(time.RFC3339))
	}

	fmt.Println()
	titleColor.Printf("%d judgements", len(interactions))
	dimColor.Printf("  (%d LooksGood, %d NotSure, %d ShouldRevert)\n",
		counts[core.LooksGood], counts[core.NotSure], counts[core.ShouldRevert])
	return nil
}

func judgementColor(j core.Judgement) *color.Color {
	switch j {
	case core.ShouldRevert:
		return errorColor
	case core.NotSure:
		return warnColor
	default:
		return successColor
	}
}

func feedLabel(feed string) string {
	if feed == "" {
		return "(no feed)"
	}
	return feed
}
