package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pysugar/gmail-agent-nexus/internal/agent"
	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
)

const maxChatBody = 64 << 10

// ChatRequest is the body of POST /agent/chat.
type ChatRequest struct {
	Prompt    string `json:"prompt"`
	AccountID string `json:"account_id,omitempty"`
	Email     string `json:"email,omitempty"`
}

// AgentChatHandler runs one agent conversation against the resolved account.
// A nil model means no LLM is configured.
func AgentChatHandler(svc *token.Service, mail agent.Mailbox, model agent.Model, maxTurns int, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model == nil {
			writeError(w, r, logger, errAgentNotConfigured)
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
			writeError(w, r, logger, invalidParam("body must be JSON with a prompt"))
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeError(w, r, logger, invalidParam("prompt is required"))
			return
		}

		acc, err := svc.ResolveAccount(r.Context(), req.AccountID, req.Email)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		tokenFn := func(ctx context.Context) (string, error) {
			return svc.EnsureValidAccessToken(ctx, acc)
		}

		res, err := agent.New(model, agent.GmailTools(mail, tokenFn), maxTurns, logger).Run(r.Context(), req.Prompt)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
