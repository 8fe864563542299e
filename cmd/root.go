// Package cmd defines and implements the CLI commands for the linkmeta executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/app"
	"github.com/JakeFAU/linkmeta/internal/config"
	"github.com/JakeFAU/linkmeta/internal/logging"
	"github.com/JakeFAU/linkmeta/internal/metadata"
	"github.com/JakeFAU/linkmeta/internal/sites"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close() error
	Logger() *zap.Logger
	Config() config.Config
	ResolveDetailed(ctx context.Context, rawURL string) metadata.Resolution
	Invalidate(ctx context.Context, rawURL string)
	Enrich(ctx context.Context, categories []sites.Category) ([]sites.Section, error)
	Serve(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkmeta",
		Short: "Resolve display titles and descriptions for website links.",
		Long: `linkmeta resolves a title and description for a URL by consulting a
persistent cache and then an ordered chain of public metadata APIs, with a
circuit breaker around the rate-limited provider and a synthesized fallback
when every provider fails.`,
		SilenceUsage: true,

		// Build the application once the config file is known and before the
		// subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				if err := appInstance.Close(); err != nil {
					appInstance.Logger().Warn("close application", zap.Error(err))
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); LINKMETA_* env vars override it")

	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newLinksCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger, lerr := logging.New(logging.Config{})
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
