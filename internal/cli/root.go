// Package cli implements the gmailagent command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pysugar/gmail-agent-nexus/internal/auth/google"
	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
	"github.com/pysugar/gmail-agent-nexus/internal/config"
	"github.com/pysugar/gmail-agent-nexus/internal/db"
	"github.com/pysugar/gmail-agent-nexus/internal/gmail"
	"github.com/pysugar/gmail-agent-nexus/internal/logging"
	"github.com/spf13/cobra"
)

// Global flags
var configPath string

var rootCmd = &cobra.Command{
	Use:   "gmailagent",
	Short: "Gmail OAuth service with a tool-calling mail agent",
	Long: `gmailagent connects Gmail accounts through Google OAuth, keeps their
tokens fresh, and serves message search plus an LLM agent over HTTP.

Configuration comes from an optional YAML file (--config) overridden by
environment variables such as GOOGLE_CLIENT_ID and DATABASE_URL.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (YAML); environment variables take precedence")
}

// app is the set of collaborators shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  db.TokenStore
	mail   *gmail.Client
	tokens *token.Service
}

func (a *app) Close() error {
	return a.store.Close()
}

// newApp loads configuration and opens the token store. Logs go to w.
func newApp(ctx context.Context, w io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(w, cfg.Logging.Level, cfg.Logging.Format).
		With(slog.String("app", cfg.App.Name), slog.String("env", cfg.App.Env))

	store, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	mail := gmail.NewClient(cfg, logger)
	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		mail:   mail,
		tokens: token.NewService(cfg, store, google.NewClient(cfg), mail, logger),
	}, nil
}

func stderr() io.Writer { return os.Stderr }
