package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartolens/cartolens/internal/config"
	"github.com/cartolens/cartolens/internal/core/turnstile"
	"github.com/cartolens/cartolens/internal/observability"
	"github.com/cartolens/cartolens/internal/output"
)

var (
	turnstileOutput string
	turnstileToken  string
	turnstileTiles  []string
)

var turnstileCmd = &cobra.Command{
	Use:   "turnstile",
	Short: "Send the daily anonymous usage event",
	Long: `Send the anonymous appUserTurnstile event for the configured access token.

At most one event succeeds per calendar day. The anonymous ID and the time of
the last success are kept in the local store.

With --tiles, the event is only sent when at least one tile URL is served by
the Mapbox API.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(turnstileOutput)
		if err != nil {
			return err
		}

		overrides := map[string]any{}
		if token := strings.TrimSpace(turnstileToken); token != "" {
			overrides["api.access_token"] = token
		}

		ctx := cmd.Context()
		cfg, err := loadConfig(ctx, overrides)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		reporter := newReporter(cfg, db.Settings())
		results := dispatchTurnstile(ctx, reporter, turnstileTiles)

		outcome := <-results
		rendered, err := output.NewFormatter(format).FormatOutcome(outcome)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), rendered); err != nil {
			return err
		}
		return outcome.Err
	},
}

func init() {
	rootCmd.AddCommand(turnstileCmd)

	turnstileCmd.Flags().StringVarP(&turnstileOutput, "output", "o", string(output.FormatText),
		"output format: "+formatList())
	turnstileCmd.Flags().StringVar(&turnstileToken, "token", "", "access token (overrides api.access_token)")
	turnstileCmd.Flags().StringSliceVar(&turnstileTiles, "tiles", nil, "only report when one of these tile URLs is a Mapbox URL")
}

func newReporter(cfg *config.Config, kv turnstile.KeyValueStore) *turnstile.Reporter {
	timeout := cfg.Turnstile.Timeout
	reporter := turnstile.NewReporter(cfg, kv, &http.Client{Timeout: timeout})
	reporter.Logger = observability.Logger()
	return reporter
}

// dispatchTurnstile picks the tile-gated variant when tile URLs are given.
func dispatchTurnstile(ctx context.Context, reporter *turnstile.Reporter, tiles []string) <-chan turnstile.Outcome {
	if len(tiles) > 0 {
		return reporter.ReportForTiles(ctx, tiles)
	}
	return reporter.Report(ctx)
}

// logOutcome waits for a report in the background and logs its result.
func logOutcome(results <-chan turnstile.Outcome) {
	go func() {
		outcome, ok := <-results
		if !ok {
			return
		}
		logger := observability.Logger()
		if logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("outcome", outcome.Label()),
			zap.Bool("persisted", outcome.Persisted),
		}
		if outcome.StatusCode != 0 {
			fields = append(fields, zap.Int("status", outcome.StatusCode))
		}
		if outcome.Err != nil {
			logger.Warn("Turnstile event failed", append(fields, zap.Error(outcome.Err))...)
			return
		}
		logger.Info("Turnstile event", fields...)
	}()
}
