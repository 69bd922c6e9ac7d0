package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/gmail-agent-nexus/internal/agent"
	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
	"github.com/pysugar/gmail-agent-nexus/internal/db/models"
	"github.com/pysugar/gmail-agent-nexus/internal/gmail"
	"github.com/pysugar/gmail-agent-nexus/internal/logging"
)

const defaultMaxResults = 10

// AccountView is the public projection of a stored account. Tokens are never
// included.
type AccountView struct {
	ID        string     `json:"id"`
	Email     *string    `json:"email"`
	Scope     string     `json:"scope"`
	ExpiresAt *time.Time `json:"expires_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func accountView(acc *models.AccountToken) AccountView {
	return AccountView{
		ID:        acc.ID,
		Email:     acc.Email,
		Scope:     acc.Scope,
		ExpiresAt: acc.ExpiresAt,
		UpdatedAt: acc.UpdatedAt,
	}
}

// AccountsHandler returns the most recently updated account, or an empty list.
func AccountsHandler(svc *token.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts := []AccountView{}
		acc, err := svc.ResolveAccount(r.Context(), "", "")
		switch {
		case err == nil:
			accounts = append(accounts, accountView(acc))
		case !token.IsNotFound(err):
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	}
}

// RefreshAccountHandler forces one access-token refresh for {id}.
func RefreshAccountHandler(svc *token.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := svc.ForceRefresh(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"account": accountView(acc)})
	}
}

// messagesQuery is the validated form of /gmail/messages parameters.
type messagesQuery struct {
	params     gmail.QueryParams
	maxResults int64
	accountID  string
	email      string
}

func parseMessagesQuery(r *http.Request) (*messagesQuery, error) {
	q := r.URL.Query()
	out := &messagesQuery{
		params: gmail.QueryParams{
			From:         q.Get("from"),
			Context:      q.Get("context"),
			ContextField: gmail.ContextFieldSubject,
		},
		maxResults: defaultMaxResults,
		accountID:  q.Get("account_id"),
		email:      q.Get("email"),
	}

	if v := q.Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return nil, invalidParam("date must be YYYY-MM-DD")
		}
		out.params.After = &d
	}
	if v := q.Get("context_field"); v != "" {
		if !gmail.ValidContextField(v) {
			return nil, invalidParam("context_field must be subject or any")
		}
		out.params.ContextField = v
	}
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 || n > gmail.MaxResultsLimit {
			return nil, invalidParam("max_results must be an integer between 1 and 50")
		}
		out.maxResults = n
	}
	return out, nil
}

// MessagesHandler searches the resolved account's mailbox and returns
// message summaries.
func MessagesHandler(svc *token.Service, mail agent.Mailbox, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mq, err := parseMessagesQuery(r)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		acc, accessToken, err := svc.AccessTokenFor(r.Context(), mq.accountID, mq.email)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		query := gmail.BuildQuery(mq.params)
		logger.InfoContext(r.Context(), "gmail fetch",
			logging.Operation("gmail_fetch"),
			logging.AccountID(acc.ID),
			logging.Email(acc.Email),
			slog.String("q", query),
			slog.Int64("max_results", mq.maxResults),
		)

		summaries, err := mail.Summaries(r.Context(), accessToken, query, mq.maxResults)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		if summaries == nil {
			summaries = []gmail.Summary{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"query": query, "messages": summaries})
	}
}

// MessageHandler returns the summary of message {id}.
func MessageHandler(svc *token.Service, mail agent.Mailbox, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if id == "" {
			writeError(w, r, logger, invalidParam("missing message id"))
			return
		}
		q := r.URL.Query()
		_, accessToken, err := svc.AccessTokenFor(r.Context(), q.Get("account_id"), q.Get("email"))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		s, err := mail.GetSummary(r.Context(), accessToken, id)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
