package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

func newUpdateCmd() *cobra.Command {
	var feedID string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Runs one update cycle over every active feed",
		Long: `Fetches the latest openBD batch once and refreshes every active feed.
Exits 0 when all feeds were updated, 2 when some failed and 1 when the cycle could not run.
With --feed only that feed is refreshed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if feedID != "" {
				return runSingleUpdate(cmd, feedID)
			}
			return runUpdateCommand(cmd)
		},
	}
	cmd.Flags().StringVar(&feedID, "feed", "", "refresh a single feed by ID")
	return cmd
}

func runUpdateCommand(cmd *cobra.Command) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, cancel := withCycleTimeout(cmd.Context(), appInstance)
	defer cancel()
	result, err := appInstance.Updater().RunCycle(ctx)
	if err != nil && !processedAny(result) {
		return fmt.Errorf("update cycle: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
	for _, f := range result.Failures {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", f.FeedID, f.Reason)
	}
	if err != nil {
		return fmt.Errorf("update cycle: %w", err)
	}
	if !result.OK() {
		return &exitError{code: ExitPartial, err: errors.New(result.Summary())}
	}
	return nil
}

// processedAny reports whether the cycle reached the per-feed stage.
func processedAny(r feed.CycleResult) bool {
	return r.Succeeded+r.Skipped+len(r.Failures) > 0
}

func runSingleUpdate(cmd *cobra.Command, id string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, cancel := withCycleTimeout(cmd.Context(), appInstance)
	defer cancel()
	f, err := appInstance.Store().GetFeed(ctx, id)
	if errors.Is(err, feed.ErrNotFound) {
		return fmt.Errorf("feed %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("load feed: %w", err)
	}
	report, err := appInstance.Updater().UpdateSingleFeed(ctx, f, nil)
	if err != nil {
		return fmt.Errorf("update feed %s: %w", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "feed %s updated: %d matched, %d new, %d items\n",
		report.FeedID, report.Matched, report.New, report.Items)
	return nil
}

func withCycleTimeout(ctx context.Context, appInstance App) (context.Context, context.CancelFunc) {
	if d := appInstance.Config().Updater.CycleTimeout; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
