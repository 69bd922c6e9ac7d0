// Package google talks to the OAuth authorization server: consent URL,
// authorization_code grant and refresh_token grant.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/gmail-agent-nexus/internal/config"
	"golang.org/x/oauth2"
)

var (
	// ErrExchange marks a failed authorization_code grant.
	ErrExchange = errors.New("authorization_code grant")
	// ErrRefresh marks a failed refresh_token grant.
	ErrRefresh = errors.New("refresh_token grant")
)

// TokenResponse is the subset of a token endpoint reply the service keeps.
// RefreshToken is empty when the server did not issue one; ExpiresIn is 0
// when no lifetime was given.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
}

// Client wraps the three authorization-server interactions. It holds no
// per-user state and is safe for concurrent use.
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

// NewClient builds a Client from the Google section of cfg.
func NewClient(cfg *config.Config) *Client {
	g := cfg.Google
	return &Client{
		config: &oauth2.Config{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			RedirectURL:  g.RedirectURI,
			Scopes:       g.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   g.AuthURL,
				TokenURL:  g.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: g.HTTPTimeout},
		now:        time.Now,
	}
}

// WithHTTPClient replaces the client used for token endpoint calls.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithClock overrides the clock used by ComputeExpiresAt.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// BuildAuthorizationURL returns the consent-screen URL for state.
// prompt=consent is forced so a refresh token is reissued on repeat consents.
func (c *Client) BuildAuthorizationURL(state string) string {
	return c.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// ExchangeCode performs the authorization_code grant.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	tok, err := c.config.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	return c.toResponse(tok), nil
}

// Refresh performs the refresh_token grant. The returned RefreshToken is
// whatever the server sent back, usually empty; callers keep the stored one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("%w: empty refresh token", ErrRefresh)
	}

	src := c.config.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefresh, err)
	}

	resp := c.toResponse(tok)
	if resp.RefreshToken == refreshToken {
		// TokenSource carries the old refresh token forward when none is returned.
		resp.RefreshToken = ""
	}
	return resp, nil
}

// ComputeExpiresAt returns now+expiresIn in UTC, or nil when expiresIn is
// not positive.
func (c *Client) ComputeExpiresAt(expiresIn int64) *time.Time {
	return ComputeExpiresAt(c.now(), expiresIn)
}

// ComputeExpiresAt is the clock-explicit form of Client.ComputeExpiresAt.
func ComputeExpiresAt(now time.Time, expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := now.UTC().Add(time.Duration(expiresIn) * time.Second)
	return &t
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) toResponse(tok *oauth2.Token) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	// x/oauth2 folds expires_in into Expiry against the wall clock.
	if !tok.Expiry.IsZero() {
		if secs := int64(time.Until(tok.Expiry).Round(time.Second) / time.Second); secs > 0 {
			resp.ExpiresIn = secs
		}
	}
	return resp
}
