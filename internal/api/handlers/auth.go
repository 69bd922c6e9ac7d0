package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
)

// SuccessPage is where a completed authorization lands.
const SuccessPage = "/success.html"

// AuthStartHandler redirects the browser to the consent screen with a fresh
// state token.
func AuthStartHandler(svc *token.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := svc.StartAuthorization()
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// AuthCallbackHandler completes the authorization-code flow and redirects to
// the success page.
func AuthCallbackHandler(svc *token.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if denied := q.Get("error"); denied != "" {
			writeError(w, r, logger, invalidParam("authorization denied: "+denied))
			return
		}

		code := q.Get("code")
		if code == "" {
			writeError(w, r, logger, invalidParam("missing code"))
			return
		}

		if _, err := svc.CompleteAuthorization(r.Context(), code, q.Get("state")); err != nil {
			writeError(w, r, logger, err)
			return
		}
		http.Redirect(w, r, SuccessPage, http.StatusFound)
	}
}
