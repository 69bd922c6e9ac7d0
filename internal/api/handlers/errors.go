// Package handlers implements the HTTP endpoints. Each constructor returns
// an http.HandlerFunc closed over its dependencies.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pysugar/gmail-agent-nexus/internal/agent"
	"github.com/pysugar/gmail-agent-nexus/internal/apperr"
	"github.com/pysugar/gmail-agent-nexus/internal/logging"
)

// Reason codes returned in error bodies.
const (
	ReasonOAuthNotConfigured = apperr.ReasonOAuthNotConfigured
	ReasonInvalidState       = apperr.ReasonInvalidState
	ReasonTokenExchange      = apperr.ReasonTokenExchange
	ReasonReauthRequired     = apperr.ReasonReauthRequired
	ReasonTokenRefresh       = apperr.ReasonTokenRefresh
	ReasonGmailFetch         = apperr.ReasonGmailFetch
	ReasonAccountNotFound    = apperr.ReasonAccountNotFound
	ReasonInternal           = apperr.ReasonInternal
	ReasonInvalidParameter   = "invalid_parameter"
	ReasonAgentNotConfigured = "agent_not_configured"
	ReasonAgentMaxTurns      = "agent_max_turns"
	ReasonAgentModel         = "agent_model_failed"
)

var errAgentNotConfigured = errors.New("agent is not configured")

// paramError is a client input problem; its text is safe to return.
type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

func invalidParam(msg string) error { return &paramError{msg: msg} }

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Detail string `json:"detail"`
	Reason string `json:"reason"`
}

// classify maps an error to status, reason and caller-safe detail.
func classify(err error) (int, string, string) {
	var pe *paramError
	switch {
	case errors.As(err, &pe):
		return http.StatusBadRequest, ReasonInvalidParameter, pe.msg
	case errors.Is(err, errAgentNotConfigured):
		return http.StatusInternalServerError, ReasonAgentNotConfigured, "Agent is not configured"
	case errors.Is(err, agent.ErrMaxTurns):
		return http.StatusBadGateway, ReasonAgentMaxTurns, "Agent did not finish within the turn limit"
	case errors.Is(err, agent.ErrModel):
		return http.StatusBadGateway, ReasonAgentModel, "Agent model call failed"
	}
	c, _ := apperr.Classify(err)
	return c.Status, c.Reason, c.Detail
}

// writeError logs err and writes the mapped error response. Internal error
// text never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, reason, detail := classify(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("reason", reason),
		logging.Err(err),
	)
	writeJSON(w, status, ErrorBody{Detail: detail, Reason: reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
