package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pysugar/gmail-agent-nexus/internal/gmail"
)

// Tool is a capability the model may call.
type Tool interface {
	Name() string
	Description() string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters() map[string]any
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

type funcTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args json.RawMessage) (any, error)
}

func (t *funcTool) Name() string               { return t.name }
func (t *funcTool) Description() string        { return t.description }
func (t *funcTool) Parameters() map[string]any { return t.parameters }

func (t *funcTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	return t.fn(ctx, args)
}

// Mailbox is the Gmail surface the tools use.
type Mailbox interface {
	Summaries(ctx context.Context, accessToken, q string, maxResults int64) ([]gmail.Summary, error)
	GetSummary(ctx context.Context, accessToken, id string) (*gmail.Summary, error)
	ProfileEmail(ctx context.Context, accessToken string) (string, error)
}

// TokenFunc returns a currently valid access token for the target account.
// It is called before every Gmail request.
type TokenFunc func(ctx context.Context) (string, error)

const defaultToolMaxResults = 10

// GmailTools returns list_emails, get_email and get_profile bound to one
// account through token.
func GmailTools(mail Mailbox, token TokenFunc) []Tool {
	return []Tool{
		&funcTool{
			name:        "list_emails",
			description: "List emails from the user's Gmail inbox. Optionally filter with a Gmail search query and/or a sender address.",
			parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string", "description": `Search query, e.g. "is:unread" or "subject:invoice".`},
					"from_email":  map[string]any{"type": "string", "description": "Only emails from this sender address."},
					"max_results": map[string]any{"type": "integer", "description": "Maximum number of emails to return (default 10, max 50)."},
				},
			},
			fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					Query      string `json:"query"`
					FromEmail  string `json:"from_email"`
					MaxResults int64  `json:"max_results"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				tok, err := token(ctx)
				if err != nil {
					return nil, err
				}
				q := gmail.BuildQuery(gmail.QueryParams{From: args.FromEmail, Context: args.Query})
				summaries, err := mail.Summaries(ctx, tok, q, gmail.ClampMaxResults(args.MaxResults, defaultToolMaxResults))
				if err != nil {
					return nil, err
				}
				emails := make([]map[string]any, 0, len(summaries))
				for _, s := range summaries {
					emails = append(emails, map[string]any{
						"id":      s.ID,
						"from":    s.FromEmail,
						"subject": s.Subject,
						"snippet": s.Snippet,
						"date":    s.Date,
					})
				}
				return map[string]any{"emails": emails, "count": len(emails)}, nil
			},
		},
		&funcTool{
			name:        "get_email",
			description: "Get details about a specific email by its id.",
			parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"email_id": map[string]any{"type": "string", "description": "The unique id of the email."},
				},
				"required": []string{"email_id"},
			},
			fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					EmailID string `json:"email_id"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				if strings.TrimSpace(args.EmailID) == "" {
					return nil, &inputError{msg: "email_id is required"}
				}
				tok, err := token(ctx)
				if err != nil {
					return nil, err
				}
				s, err := mail.GetSummary(ctx, tok, args.EmailID)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"id":        s.ID,
					"thread_id": s.ThreadID,
					"from":      s.FromEmail,
					"subject":   s.Subject,
					"snippet":   s.Snippet,
					"date":      s.Date,
				}, nil
			},
		},
		&funcTool{
			name:        "get_profile",
			description: "Get the email address of the connected Gmail account.",
			fn: func(ctx context.Context, _ json.RawMessage) (any, error) {
				tok, err := token(ctx)
				if err != nil {
					return nil, err
				}
				email, err := mail.ProfileEmail(ctx, tok)
				if err != nil {
					return nil, err
				}
				return map[string]any{"email": email}, nil
			},
		},
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &inputError{msg: "invalid arguments: " + err.Error()}
	}
	return nil
}

// inputError is a bad tool argument from the model; its text is safe to
// send back.
type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }
