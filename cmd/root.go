// Package cmd defines the bookfeed CLI: batch update, feed creation and seeding, and the HTTP server.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookfeed/internal/app"
	"github.com/JakeFAU/bookfeed/internal/config"
	"github.com/JakeFAU/bookfeed/internal/feed"
	"github.com/JakeFAU/bookfeed/internal/updater"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 2
)

// App is the application surface commands use.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Store() feed.Store
	Updater() *updater.Updater
	IDs() feed.IDGenerator
	Serve(ctx context.Context) error
	Close() error
}

type appFactory func(ctx context.Context, cfg config.Config) (App, error)

func buildApp(ctx context.Context, cfg config.Config) (App, error) {
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type appKeyType struct{}

// exitError carries a non-default process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

type rootCommand struct {
	*cobra.Command
	app App
}

// close releases the App built by the pre-run hook. Cobra skips post-run hooks when a
// command fails, so this runs after Execute instead.
func (r *rootCommand) close() {
	if r.app == nil {
		return
	}
	if err := r.app.Close(); err != nil {
		fmt.Fprintf(r.ErrOrStderr(), "close: %v\n", err)
	}
	r.app = nil
}

func newRootCmd(factory appFactory) *rootCommand {
	var cfgFile string
	root := &rootCommand{}
	root.Command = &cobra.Command{
		Use:   "bookfeed",
		Short: "Turns the openBD catalog into per-subscription RSS feeds.",
		Long: `bookfeed keeps a set of saved book searches (series, title keyword, publisher,
classification code) and refreshes an RSS 2.0 document for each of them from the
latest openBD catalog batch.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := factory(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			root.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, appInstance))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env BOOKFEED_* overrides")

	root.AddCommand(newUpdateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newCreateCmd())
	root.AddCommand(newDeactivateCmd())
	root.AddCommand(newServeCmd())
	return root
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKeyType{}).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return run(context.Background(), newRootCmd(buildApp), os.Args[1:])
}

func run(ctx context.Context, root *rootCommand, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	root.close()
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFatal
}
