// Package geminikey calls the Google AI Studio Gemini API with a server-side
// API key.
package geminikey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/gmail-agent-nexus/internal/util"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-flash"
	defaultTimeout = 2 * time.Minute

	maxErrorBody = 2048
)

// Provider sends generateContent requests for one model.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

// NewProvider creates a Provider with explicit configuration.
func NewProvider(apiKey, baseURL, model string, timeout time.Duration) *Provider {
	return NewProviderWithClient(apiKey, baseURL, model, timeout, nil)
}

// NewProviderWithClient creates a Provider with optional custom HTTP client.
func NewProviderWithClient(apiKey, baseURL, model string, timeout time.Duration, httpClient *http.Client) *Provider {
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if trimmedBaseURL == "" {
		trimmedBaseURL = defaultBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Provider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(trimmedBaseURL, "/"),
		model:      model,
		httpClient: httpClient,
		sleep:      sleepContext,
	}
}

// IsEnabled indicates whether provider has valid API key.
func (p *Provider) IsEnabled() bool {
	return p != nil && p.apiKey != ""
}

// Model returns the model name requests are sent to.
func (p *Provider) Model() string {
	return p.model
}

// GenerateContent performs one non-streaming generateContent call.
func (p *Provider) GenerateContent(ctx context.Context, in *GenerateContentRequest) (*GenerateContentResponse, error) {
	if !p.IsEnabled() {
		return nil, fmt.Errorf("gemini key provider is not enabled")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	path := "/v1beta/models/" + url.PathEscape(p.model) + ":generateContent"
	raw, err := p.post(ctx, path, body)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !retryable(apiErr.StatusCode) {
			return nil, err
		}
		delay, ok := retryDelay(apiErr.header, apiErr.raw, time.Now())
		if !ok {
			return nil, err
		}
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}
		if raw, err = p.post(ctx, path, body); err != nil {
			return nil, err
		}
	}

	var out GenerateContentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// post sends one request and returns the body of a 2xx reply.
func (p *Provider) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := p.buildRequest(ctx, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       util.TruncateLog(string(raw), maxErrorBody),
			header:     resp.Header,
			raw:        raw,
		}
	}
	return raw, nil
}

// buildRequest targets path on the base URL and injects the server-side key.
// The key travels as a query parameter; no client credentials are forwarded.
func (p *Provider) buildRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	target, err := url.Parse(p.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	query := target.Query()
	query.Set("key", p.apiKey)
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
