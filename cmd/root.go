// Package cmd defines the CLI commands for the datasheetd executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/config"
	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the wired service. Tests swap in a fake.
type App interface {
	Run(ctx context.Context) error
	ExtractOnce(ctx context.Context, rawURL string) (datasheet.RequestRecord, error)
	Logger() *zap.Logger
	Close() error
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return server.Build(ctx, &cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "datasheetd",
		Short: "Turns product page URLs into branded DOCX and PDF datasheets.",
		Long: `datasheetd accepts product page URLs over HTTP, extracts product data
from the configured vendor sites and renders a DOCX and a PDF datasheet for
each one, announcing the outcome to a webhook.`,
		SilenceUsage: true,

		// Builds the application once config is known, before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				if err := appInstance.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "close failed: %v\n", err)
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env DATASHEET_* overrides apply either way)")
	cmd.AddCommand(newServeCmd(), newExtractCmd())
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
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "command execution failed: %v\n", err)
		os.Exit(1)
	}
}
