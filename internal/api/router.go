// Package api assembles the HTTP router.
package api

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pysugar/gmail-agent-nexus/internal/agent"
	"github.com/pysugar/gmail-agent-nexus/internal/api/handlers"
	"github.com/pysugar/gmail-agent-nexus/internal/api/middleware"
	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
	"github.com/pysugar/gmail-agent-nexus/internal/config"
	"github.com/pysugar/gmail-agent-nexus/internal/logging"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config *config.Config
	Tokens *token.Service
	Mail   agent.Mailbox
	Model  agent.Model // nil disables /agent/chat
	Logger *slog.Logger
}

// NewRouter builds the full HTTP surface.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(logging.RequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.TrustedHosts(cfg.Server.AllowedHosts))
	r.Use(middleware.CORS(origins))

	r.Get("/health", handlers.HealthHandler())

	// OAuth
	r.Get("/auth/start", handlers.AuthStartHandler(d.Tokens, logger))
	r.Get("/api/callback", handlers.AuthCallbackHandler(d.Tokens, logger))

	r.Route("/gmail", func(r chi.Router) {
		r.Get("/accounts", handlers.AccountsHandler(d.Tokens, logger))
		r.Post("/accounts/{id}/refresh", handlers.RefreshAccountHandler(d.Tokens, logger))
		r.Get("/messages", handlers.MessagesHandler(d.Tokens, d.Mail, logger))
		r.Get("/messages/{id}", handlers.MessageHandler(d.Tokens, d.Mail, logger))
	})

	r.Post("/agent/chat", handlers.AgentChatHandler(d.Tokens, d.Mail, d.Model, cfg.Agent.MaxTurns, logger))

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	mountFrontend(r, cfg.Server.FrontendDir, logger)
	return r
}

// mountFrontend serves dir at / when it exists.
func mountFrontend(r chi.Router, dir string, logger *slog.Logger) {
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logger.Warn("frontend not mounted", slog.String("missing_path", dir))
		return
	}
	r.Handle("/*", http.FileServer(http.Dir(dir)))
	logger.Info("frontend mounted", slog.String("path", dir))
}
