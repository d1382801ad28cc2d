package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

func newDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <feed-id>",
		Short: "Stops future updates of a feed",
		Long: `Marks a feed inactive. Its document stops being served and update cycles skip it,
including a cycle that is already running.`,
		Args: cobra.ExactArgs(1),
		RunE: runDeactivateCommand,
	}
}

func runDeactivateCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	f, err := appInstance.Updater().DeactivateFeed(cmd.Context(), args[0])
	if errors.Is(err, feed.ErrNotFound) {
		return fmt.Errorf("feed %s not found", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deactivated feed %s (%s)\n", f.ID, f.Name)
	return nil
}
