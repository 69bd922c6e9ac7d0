package geminikey

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultRetryDelay = time.Second
	maxRetryDelay     = 10 * time.Second
)

// retryInfo is the part of a Google API error body that carries a backoff
// hint, e.g. {"error":{"details":[{"retryDelay":"3.5s"}]}}.
type retryInfo struct {
	Error struct {
		Details []struct {
			RetryDelay string            `json:"retryDelay"`
			Metadata   map[string]string `json:"metadata"`
		} `json:"details"`
	} `json:"error"`
}

// retryable reports whether a reply with this status may succeed later.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// parseRetryDelay extracts the backoff hint from the Retry-After header or
// the JSON error body. It returns 0 when neither carries one.
func parseRetryDelay(h http.Header, body []byte, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			return t.Sub(now)
		}
	}

	var info retryInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return 0
	}
	for _, d := range info.Error.Details {
		delay := d.RetryDelay
		if delay == "" {
			delay = d.Metadata["retryDelay"]
		}
		if delay == "" {
			continue
		}
		if parsed, err := time.ParseDuration(delay); err == nil {
			return parsed
		}
	}
	return 0
}

// retryDelay picks the wait before the single retry. ok is false when the
// server asked for longer than maxRetryDelay.
func retryDelay(h http.Header, body []byte, now time.Time) (d time.Duration, ok bool) {
	d = parseRetryDelay(h, body, now)
	switch {
	case d <= 0:
		return defaultRetryDelay, true
	case d > maxRetryDelay:
		return d, false
	default:
		return d, true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
