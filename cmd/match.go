package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	matchrender "github.com/bnema/deadlock-gc/internal/adapters/render/match"
	"github.com/bnema/deadlock-gc/internal/application"
	"github.com/bnema/deadlock-gc/internal/domain"
)

func newMatchCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Query matches from the game coordinator",
	}

	cmd.AddCommand(
		newMatchMetadataCmd(app),
		newMatchHistoryCmd(app),
	)

	return cmd
}

func newMatchMetadataCmd(app *app) *cobra.Command {
	var (
		opts   = sessionOptions{failFast: true}
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "metadata <match-id>",
		Short: "Fetch the replay and metadata locators of a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matchID, err := parseMatchID(args[0])
			if err != nil {
				return err
			}

			opts.spinner = !asJSON
			var meta domain.MatchMetadata
			if err := runSession(cmd, app, opts, func(ctx context.Context, client *application.Client) error {
				var err error
				meta, err = client.GetMatchMetadata(ctx, matchID)
				return err
			}); err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, meta)
			}

			rendered, err := app.renderMetadata(meta)
			if err != nil {
				return fmt.Errorf("render match metadata: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	addSessionFlags(cmd, &opts, defaultReadyTimeout)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newMatchHistoryCmd(app *app) *cobra.Command {
	var (
		opts   = sessionOptions{failFast: true}
		asJSON bool
		cursor uint32
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Fetch a page of the global match history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.spinner = !asJSON

			var history domain.MatchHistory
			if err := runSession(cmd, app, opts, func(ctx context.Context, client *application.Client) error {
				var err error
				history, err = client.GetGlobalMatchHistory(ctx, cursor)
				return err
			}); err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, history)
			}

			rendered, err := app.renderHistory(history, matchrender.RenderOptions{Now: app.now()})
			if err != nil {
				return fmt.Errorf("render match history: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	addSessionFlags(cmd, &opts, defaultReadyTimeout)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().Uint32Var(&cursor, "cursor", 0, "Resume from the cursor of a previous page (0 starts at the newest match)")

	return cmd
}

func parseMatchID(raw string) (domain.MatchID, error) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("match id must be a positive number, got %q", raw)
	}
	return domain.MatchID(n), nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
