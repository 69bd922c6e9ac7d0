package gmail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildQuery(t *testing.T) {
	after := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   QueryParams
		want string
	}{
		{
			name: "all parts",
			in:   QueryParams{From: "a@b.com", After: &after, Context: "invoice"},
			want: "from:a@b.com after:2024/01/02 subject:(invoice)",
		},
		{
			name: "raw gmail syntax passes through",
			in:   QueryParams{Context: "is:unread"},
			want: "is:unread",
		},
		{
			name: "any field is bare",
			in:   QueryParams{Context: "x", ContextField: ContextFieldAny},
			want: "x",
		},
		{
			name: "colon wins over subject field",
			in:   QueryParams{Context: " label:work ", ContextField: ContextFieldSubject},
			want: "label:work",
		},
		{
			name: "explicit subject",
			in:   QueryParams{Context: "quarterly report", ContextField: ContextFieldSubject},
			want: "subject:(quarterly report)",
		},
		{
			name: "date only",
			in:   QueryParams{After: &after},
			want: "after:2024/01/02",
		},
		{
			name: "empty",
			in:   QueryParams{Context: "   "},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.in))
		})
	}
}

func TestValidContextField(t *testing.T) {
	assert.True(t, ValidContextField("subject"))
	assert.True(t, ValidContextField("any"))
	assert.False(t, ValidContextField("body"))
	assert.False(t, ValidContextField(""))
}

func TestClampMaxResults(t *testing.T) {
	assert.EqualValues(t, 10, ClampMaxResults(0, 10))
	assert.EqualValues(t, 1, ClampMaxResults(-3, 10))
	assert.EqualValues(t, 50, ClampMaxResults(500, 10))
	assert.EqualValues(t, 7, ClampMaxResults(7, 10))
}
