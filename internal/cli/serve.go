package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysugar/gmail-agent-nexus/internal/agent"
	"github.com/pysugar/gmail-agent-nexus/internal/api"
	"github.com/pysugar/gmail-agent-nexus/internal/upstream/geminikey"
	"github.com/pysugar/gmail-agent-nexus/internal/version"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	modelTimeout    = 90 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, logger := a.cfg, a.logger
	if !cfg.OAuthConfigured() {
		logger.Warn("google oauth client not configured; /auth/start will fail")
	}
	if cfg.UsingDefaultStateSecret() {
		logger.Warn("using the default OAuth state secret; set OAUTH_STATE_SECRET")
	}

	var model agent.Model
	if cfg.AgentConfigured() {
		provider := geminikey.NewProvider(cfg.Agent.GeminiAPIKey, cfg.Agent.GeminiBaseURL, cfg.Agent.GeminiModel, modelTimeout)
		model = agent.NewGeminiModel(provider)
		logger.Info("agent enabled", slog.String("model", provider.Model()))
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(api.Deps{
			Config: cfg,
			Tokens: a.tokens,
			Mail:   a.mail,
			Model:  model,
			Logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", srv.Addr), slog.String("version", version.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
