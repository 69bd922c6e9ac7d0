package gmail

import (
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Summary is the normalized view of one message. Header-derived fields are
// nil when the header is absent.
type Summary struct {
	ID        string  `json:"id"`
	ThreadID  string  `json:"thread_id"`
	Snippet   *string `json:"snippet"`
	FromEmail *string `json:"from_email"`
	Subject   *string `json:"subject"`
	Date      *string `json:"date"`
}

// metadataHeaders are requested with format=metadata.
var metadataHeaders = []string{"From", "Subject", "Date"}

// ToSummary extracts a Summary from a message fetched with format=metadata.
func ToSummary(m *gmail.Message) Summary {
	s := Summary{ID: m.Id, ThreadID: m.ThreadId}
	if m.Snippet != "" {
		snippet := m.Snippet
		s.Snippet = &snippet
	}
	if m.Payload != nil {
		s.FromEmail = headerValue(m.Payload.Headers, "From")
		s.Subject = headerValue(m.Payload.Headers, "Subject")
		s.Date = headerValue(m.Payload.Headers, "Date")
	}
	return s
}

func headerValue(headers []*gmail.MessagePartHeader, name string) *string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			v := h.Value
			return &v
		}
	}
	return nil
}
