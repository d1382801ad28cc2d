package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <feed-id>",
		Short: "Writes the initial (empty) document for a feed",
		Long: `Generates a valid, item-free RSS document for an existing feed so subscribers can
resolve its URL before the first cycle. Stored history is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: runSeedCommand,
	}
}

func runSeedCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	f, err := appInstance.Store().GetFeed(cmd.Context(), args[0])
	if errors.Is(err, feed.ErrNotFound) {
		return fmt.Errorf("feed %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("load feed: %w", err)
	}
	if err := appInstance.Updater().SeedInitialFeed(cmd.Context(), f); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded feed %s (%s)\n", f.ID, f.Name)
	return nil
}
