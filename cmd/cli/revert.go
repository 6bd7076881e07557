package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/wire"
)

var revertUser string

var revertCmd = &cobra.Command{
	Use:   "revert [wiki:revId]",
	Short: "Undo a revision with your wiki OAuth token",
	Long: `Undoes a revision on behalf of the owner of the OAuth token, subject to
the same permission checks and rate limit as the HTTP API.

The token is read from --token or RW_WIKI_TOKEN.

Examples:
  warden-cli revert enwiki:989699374 --user Alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		key, err := core.ParseRevisionKey(args[0])
		if err != nil {
			return err
		}
		token := viper.GetString("wiki-token")
		if token == "" {
			return errors.New("a wiki OAuth token is required (--token or RW_WIKI_TOKEN)")
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		app, cleanup, err := wire.InitializeApp()
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer cleanup()

		res, err := app.Reverter.Revert(ctx, core.RevertRequest{
			Wiki:       key.Wiki,
			RevisionID: key.RevisionID,
			ActingUser: revertUser,
			Credential: token,
		})
		var rejected *core.UpstreamRejectedError
		switch {
		case err == nil:
		case errors.As(err, &rejected):
			errorColor.Printf("wiki rejected the revert at %s\n", rejected.Stage)
			if len(rejected.Payload) > 0 {
				dimColor.Println(string(rejected.Payload))
			}
			return err
		default:
			errorColor.Printf("revert failed: %v\n", err)
			return err
		}

		if outputJSON {
			return printJSON(res)
		}
		successColor.Printf("Reverted %s:%d", res.Wiki, res.RevisionID)
		fmt.Printf(" %s\n", res.Title)
		dimColor.Println(string(res.Upstream))
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	revertCmd.Flags().StringVar(&revertUser, "user", "", "wiki user name recorded in the audit log")
	revertCmd.Flags().String("token", "", "wiki OAuth access token")
	if err := viper.BindPFlag("wiki-token", revertCmd.Flags().Lookup("token")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(revertCmd)
}
