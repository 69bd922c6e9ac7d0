// Package apperr maps lifecycle and upstream errors to caller-safe reason
// codes. Wrapped error text is for logs only.
package apperr

import (
	"errors"
	"net/http"

	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
	"github.com/pysugar/gmail-agent-nexus/internal/db"
	"github.com/pysugar/gmail-agent-nexus/internal/gmail"
)

// Reason codes.
const (
	ReasonOAuthNotConfigured = "oauth_not_configured"
	ReasonInvalidState       = "invalid_state"
	ReasonTokenExchange      = "token_exchange_failed"
	ReasonReauthRequired     = "reauth_required"
	ReasonTokenRefresh       = "token_refresh_failed"
	ReasonGmailFetch         = "gmail_fetch_failed"
	ReasonAccountNotFound    = "account_not_found"
	ReasonInternal           = "internal_error"
)

// Class is the public face of an error.
type Class struct {
	Status int
	Reason string
	Detail string
}

// String renders "reason: detail".
func (c Class) String() string {
	return c.Reason + ": " + c.Detail
}

// Internal is the class of every unrecognized error.
var Internal = Class{http.StatusInternalServerError, ReasonInternal, "Internal server error"}

// Classify maps err to its class. ok is false for unrecognized errors, which
// get Internal.
func Classify(err error) (c Class, ok bool) {
	switch {
	case errors.Is(err, token.ErrConfiguration):
		return Class{http.StatusInternalServerError, ReasonOAuthNotConfigured, "OAuth client is not configured"}, true
	case errors.Is(err, token.ErrInvalidState):
		return Class{http.StatusBadRequest, ReasonInvalidState, "Invalid or expired state"}, true
	case errors.Is(err, token.ErrTokenExchange):
		return Class{http.StatusBadGateway, ReasonTokenExchange, "Token exchange failed"}, true
	case errors.Is(err, token.ErrReauthRequired):
		return Class{http.StatusUnauthorized, ReasonReauthRequired, "No refresh token stored; re-auth required"}, true
	case errors.Is(err, token.ErrTokenRefresh):
		return Class{http.StatusBadGateway, ReasonTokenRefresh, "Token refresh failed"}, true
	case errors.Is(err, gmail.ErrUpstreamFetch):
		return Class{http.StatusBadGateway, ReasonGmailFetch, "Gmail fetch failed"}, true
	case errors.Is(err, db.ErrNotFound):
		return Class{http.StatusNotFound, ReasonAccountNotFound, "No connected Gmail account found"}, true
	default:
		return Internal, false
	}
}
