// Package cmd defines and implements the CLI commands for the urlsec-blocklist executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/urlsec-blocklist/internal/app"
	appconfig "github.com/JakeFAU/urlsec-blocklist/internal/config"
	"github.com/JakeFAU/urlsec-blocklist/internal/logging"
	"github.com/JakeFAU/urlsec-blocklist/pkg/config"
)

var cfgFile string

// initConfig loads the config file and environment into viper before any
// command runs. It's a variable so tests can observe it.
var initConfig = func() { config.InitConfig(cfgFile) }

func init() {
	cobra.OnInitialize(func() { initConfig() })
}

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// annotationNeedsApp marks commands that run against application services.
const annotationNeedsApp = "needs_app"

// App is the part of *app.App the commands use. Tests inject a mock.
type App interface {
	Run(ctx context.Context) (app.Report, error)
	Logger() *zap.Logger
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := appconfig.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	logging.Use(logger)
	return app.NewApp(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "urlsec-blocklist",
		Short: "Builds a URL blocklist from the urlsec threat feed.",
		Long: `urlsec-blocklist queries the urlsec risk list, normalizes every reported
URL and writes the deduplicated "url # category" lines to blocklist.txt,
optionally mirroring the file to GCS and announcing it on Pub/Sub.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNeedsApp] != "true" {
				return nil
			}
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newVersionCmd())

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
	logging.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
