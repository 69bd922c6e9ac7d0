package geminikey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestGenerateContent_InjectsKeyAndDecodes(t *testing.T) {
	var gotPath, gotKey, gotContentType string
	var gotBody GenerateContentRequest

	client := &http.Client{
		Timeout: time.Minute,
		Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			gotPath = r.URL.Path
			gotKey = r.URL.Query().Get("key")
			gotContentType = r.Header.Get("Content-Type")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			return jsonResponse(http.StatusOK, `{
				"candidates": [{
					"content": {"role": "model", "parts": [{"functionCall": {"name": "get_profile", "args": {}}}]},
					"finishReason": "STOP"
				}]
			}`), nil
		}),
	}

	provider := NewProviderWithClient("server-key", "https://example.test/", "gemini-test", time.Minute, client)
	resp, err := provider.GenerateContent(context.Background(), &GenerateContentRequest{
		SystemInstruction: &Content{Parts: []Part{{Text: "system"}}},
		Contents:          []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
		Tools: []Tool{{FunctionDeclarations: []FunctionDeclaration{
			{Name: "get_profile", Description: "profile"},
		}}},
	})
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}

	if gotPath != "/v1beta/models/gemini-test:generateContent" {
		t.Fatalf("unexpected upstream path: %s", gotPath)
	}
	if gotKey != "server-key" {
		t.Fatalf("expected key=server-key, got %q", gotKey)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected json content type, got %q", gotContentType)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "hi" {
		t.Fatalf("request body not forwarded: %+v", gotBody)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "system" {
		t.Fatalf("system instruction missing")
	}

	if len(resp.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(resp.Candidates))
	}
	call := resp.Candidates[0].Content.Parts[0].FunctionCall
	if call == nil || call.Name != "get_profile" {
		t.Fatalf("expected get_profile function call, got %+v", resp.Candidates[0].Content.Parts[0])
	}
}

func TestGenerateContent_APIError(t *testing.T) {
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"error":{"message":"bad schema"}}`), nil
	})}

	provider := NewProviderWithClient("k", "", "", 0, client)
	_, err := provider.GenerateContent(context.Background(), &GenerateContentRequest{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Body, "bad schema") {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if want := "gemini api error: status 400: "; !strings.HasPrefix(apiErr.Error(), want) {
		t.Fatalf("Error() = %q, want prefix %q", apiErr.Error(), want)
	}
}

func TestProviderDefaults(t *testing.T) {
	p := NewProvider("  ", "", "", 0)
	if p.IsEnabled() {
		t.Fatal("blank key must disable the provider")
	}
	if p.Model() != defaultModel {
		t.Fatalf("expected default model, got %q", p.Model())
	}
	if p.baseURL != defaultBaseURL {
		t.Fatalf("expected default base URL, got %q", p.baseURL)
	}

	var nilProvider *Provider
	if nilProvider.IsEnabled() {
		t.Fatal("nil provider must report disabled")
	}
	if _, err := p.GenerateContent(context.Background(), &GenerateContentRequest{}); err == nil {
		t.Fatal("expected error from disabled provider")
	}
}

func TestGenerateContent_RetriesOnceWithServerDelay(t *testing.T) {
	calls := 0
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusTooManyRequests,
				`{"error":{"code":429,"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"2.5s"}]}}`), nil
		}
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]}}]}`), nil
	})}

	provider := NewProviderWithClient("k", "", "", 0, client)
	var slept time.Duration
	provider.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	out, err := provider.GenerateContent(context.Background(), &GenerateContentRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if slept != 2500*time.Millisecond {
		t.Fatalf("expected server delay 2.5s, got %v", slept)
	}
	if len(out.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(out.Candidates))
	}
}

func TestGenerateContent_NoRetryBeyondMaxDelay(t *testing.T) {
	calls := 0
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		resp := jsonResponse(http.StatusTooManyRequests, `{}`)
		resp.Header.Set("Retry-After", "120")
		return resp, nil
	})}

	provider := NewProviderWithClient("k", "", "", 0, client)
	provider.sleep = func(context.Context, time.Duration) error {
		t.Fatal("must not sleep")
		return nil
	}

	if _, err := provider.GenerateContent(context.Background(), &GenerateContentRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestParseRetryDelay(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	h := http.Header{}
	h.Set("Retry-After", "7")
	if got := parseRetryDelay(h, nil, now); got != 7*time.Second {
		t.Fatalf("header seconds: got %v", got)
	}

	h.Set("Retry-After", now.Add(3*time.Second).Format(http.TimeFormat))
	if got := parseRetryDelay(h, nil, now); got != 3*time.Second {
		t.Fatalf("header date: got %v", got)
	}

	body := []byte(`{"error":{"details":[{"metadata":{"retryDelay":"1.5s"}}]}}`)
	if got := parseRetryDelay(http.Header{}, body, now); got != 1500*time.Millisecond {
		t.Fatalf("metadata delay: got %v", got)
	}

	if got := parseRetryDelay(http.Header{}, []byte("not json"), now); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}

	if d, ok := retryDelay(http.Header{}, nil, now); !ok || d != defaultRetryDelay {
		t.Fatalf("expected default delay, got %v %v", d, ok)
	}
}
