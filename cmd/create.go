package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bookfeed/internal/feed"
	"github.com/JakeFAU/bookfeed/internal/updater"
)

type createOptions struct {
	name      string
	series    string
	title     string
	publisher string
	ccode     string
	matchMode string
	maxItems  int
	interval  string
}

func newCreateCmd() *cobra.Command {
	opts := &createOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Creates a feed and writes its initial document",
		Example: `  bookfeed create --name "技術書" --ccode 30 --match-mode suffix
  bookfeed create --name "新書" --publisher 岩波書店 --max-items 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreateCommand(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.name, "name", "", "feed name (required)")
	flags.StringVar(&opts.series, "series", "", "exact series name")
	flags.StringVar(&opts.title, "title", "", "case-insensitive title keyword")
	flags.StringVar(&opts.publisher, "publisher", "", "exact publisher name")
	flags.StringVar(&opts.ccode, "ccode", "", "C-code (digits)")
	flags.StringVar(&opts.matchMode, "match-mode", string(feed.MatchPrefix), "C-code match: exact, prefix or suffix")
	flags.IntVar(&opts.maxItems, "max-items", feed.DefaultMaxItems, "maximum items in the document")
	flags.StringVar(&opts.interval, "interval", string(feed.IntervalDaily), "informational update interval: daily or weekly")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runCreateCommand(cmd *cobra.Command, opts *createOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	f, err := appInstance.Updater().CreateFeed(cmd.Context(), appInstance.IDs(), updater.NewFeed{
		Name: opts.name,
		Criteria: feed.Criteria{
			SeriesName:         opts.series,
			TitleKeyword:       opts.title,
			Publisher:          opts.publisher,
			ClassificationCode: opts.ccode,
			MatchMode:          feed.MatchMode(strings.ToLower(strings.TrimSpace(opts.matchMode))),
		},
		MaxItems: opts.maxItems,
		Interval: feed.UpdateInterval(opts.interval),
	})
	if err != nil && f.ID == "" {
		return fmt.Errorf("create feed: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "created feed %s (%s)\n", f.ID, f.Name)
	fmt.Fprintf(out, "url: %s/%s\n", strings.TrimRight(appInstance.Config().RSS.SelfBaseURL, "/"), f.ID)
	if err != nil {
		return fmt.Errorf("feed %s saved but not seeded: %w", f.ID, err)
	}
	return nil
}
