// Package gmail turns structured search parameters into Gmail queries and
// fetches normalized message metadata through the Gmail API.
package gmail

import (
	"strings"
	"time"
)

// Context field values for QueryParams.ContextField.
const (
	ContextFieldSubject = "subject"
	ContextFieldAny     = "any"
)

// QueryParams are the structured filters accepted by BuildQuery.
type QueryParams struct {
	From         string
	After        *time.Time
	Context      string
	ContextField string // subject (default) or any
}

// BuildQuery renders p as a Gmail search string. Parts appear in the order
// from, after, context, joined by single spaces. A context containing ':' is
// treated as raw Gmail syntax and passed through verbatim.
func BuildQuery(p QueryParams) string {
	var parts []string

	if from := strings.TrimSpace(p.From); from != "" {
		parts = append(parts, "from:"+from)
	}
	if p.After != nil {
		parts = append(parts, "after:"+p.After.Format("2006/01/02"))
	}
	if ctx := strings.TrimSpace(p.Context); ctx != "" {
		switch {
		case strings.Contains(ctx, ":"):
			parts = append(parts, ctx)
		case p.ContextField == ContextFieldAny:
			parts = append(parts, ctx)
		default:
			parts = append(parts, "subject:("+ctx+")")
		}
	}
	return strings.Join(parts, " ")
}

// ValidContextField reports whether f is an accepted context field.
func ValidContextField(f string) bool {
	return f == ContextFieldSubject || f == ContextFieldAny
}
