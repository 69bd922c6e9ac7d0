package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pysugar/gmail-agent-nexus/internal/agent"
	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
	"github.com/pysugar/gmail-agent-nexus/internal/db"
	"github.com/pysugar/gmail-agent-nexus/internal/gmail"
	"github.com/pysugar/gmail-agent-nexus/internal/logging"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		reason string
	}{
		{invalidParam("max_results must be an integer between 1 and 50"), http.StatusBadRequest, ReasonInvalidParameter},
		{token.ErrConfiguration, http.StatusInternalServerError, ReasonOAuthNotConfigured},
		{token.ErrInvalidState, http.StatusBadRequest, ReasonInvalidState},
		{fmt.Errorf("%w: boom", token.ErrTokenExchange), http.StatusBadGateway, ReasonTokenExchange},
		{token.ErrReauthRequired, http.StatusUnauthorized, ReasonReauthRequired},
		{fmt.Errorf("%w: invalid_grant", token.ErrTokenRefresh), http.StatusBadGateway, ReasonTokenRefresh},
		{fmt.Errorf("%w: list: 500", gmail.ErrUpstreamFetch), http.StatusBadGateway, ReasonGmailFetch},
		{db.ErrNotFound, http.StatusNotFound, ReasonAccountNotFound},
		{errAgentNotConfigured, http.StatusInternalServerError, ReasonAgentNotConfigured},
		{agent.ErrMaxTurns, http.StatusBadGateway, ReasonAgentMaxTurns},
		{fmt.Errorf("%w: turn 1: 429", agent.ErrModel), http.StatusBadGateway, ReasonAgentModel},
		{errors.New("disk full"), http.StatusInternalServerError, ReasonInternal},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			status, reason, _ := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/gmail/messages", nil)

	writeError(rec, req, logging.Discard(), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"detail":"Internal server error","reason":"internal_error"}`, rec.Body.String())
}
