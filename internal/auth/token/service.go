// Package token owns the OAuth account-token lifecycle: starting and
// completing authorization, and handing out access tokens that are valid at
// call time.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pysugar/gmail-agent-nexus/internal/auth/google"
	"github.com/pysugar/gmail-agent-nexus/internal/auth/state"
	"github.com/pysugar/gmail-agent-nexus/internal/config"
	"github.com/pysugar/gmail-agent-nexus/internal/db"
	"github.com/pysugar/gmail-agent-nexus/internal/db/models"
	"github.com/pysugar/gmail-agent-nexus/internal/logging"
	"github.com/pysugar/gmail-agent-nexus/internal/metrics"
)

// Skew is subtracted from expires_at before a token counts as valid.
const Skew = 60 * time.Second

// OAuthClient is the authorization-server surface the service needs.
type OAuthClient interface {
	BuildAuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*google.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*google.TokenResponse, error)
	ComputeExpiresAt(expiresIn int64) *time.Time
}

// ProfileLookup resolves the mailbox address behind an access token.
type ProfileLookup interface {
	ProfileEmail(ctx context.Context, accessToken string) (string, error)
}

// Service orchestrates state tokens, the OAuth client and the token store.
// It keeps no per-account state in memory.
type Service struct {
	cfg     *config.Config
	store   db.TokenStore
	oauth   OAuthClient
	profile ProfileLookup
	states  *state.Codec
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires a Service. profile may be nil, in which case accounts are
// stored without an email.
func NewService(cfg *config.Config, store db.TokenStore, oauth OAuthClient, profile ProfileLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		oauth:   oauth,
		profile: profile,
		states:  state.NewCodec(cfg.State.Secret, cfg.State.MaxAge),
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the clock used for expiry checks and state tokens.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.states = s.states.WithClock(now)
	return s
}

// Store returns the backing token store.
func (s *Service) Store() db.TokenStore {
	return s.store
}

// StartAuthorization mints a state token and returns the consent URL.
func (s *Service) StartAuthorization() (string, error) {
	if !s.cfg.OAuthConfigured() {
		return "", ErrConfiguration
	}
	st, err := s.states.Create()
	if err != nil {
		return "", fmt.Errorf("create state: %w", err)
	}
	return s.oauth.BuildAuthorizationURL(st), nil
}

// CompleteAuthorization handles the redirect back from the consent screen:
// verify state, exchange the code, resolve the email best-effort and upsert.
// Nothing is persisted unless the exchange returned an access token.
func (s *Service) CompleteAuthorization(ctx context.Context, code, stateToken string) (acc *models.AccountToken, err error) {
	defer func() { metrics.RecordCallback(err == nil) }()
	log := s.logger.With(logging.Operation("oauth_callback"))

	if !s.states.Verify(stateToken) {
		log.WarnContext(ctx, "rejected callback with invalid state")
		return nil, ErrInvalidState
	}
	if !s.cfg.OAuthConfigured() {
		return nil, ErrConfiguration
	}

	resp, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		log.ErrorContext(ctx, "code exchange failed", logging.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	if resp.AccessToken == "" {
		log.ErrorContext(ctx, "code exchange returned no access token")
		return nil, fmt.Errorf("%w: missing access_token", ErrTokenExchange)
	}

	email := s.lookupEmail(ctx, resp.AccessToken)

	rec := &models.AccountToken{
		Email:       email,
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		Scope:       resp.Scope,
		ExpiresAt:   s.oauth.ComputeExpiresAt(resp.ExpiresIn),
	}
	if resp.RefreshToken != "" {
		rec.RefreshToken = &resp.RefreshToken
	}

	acc, err = s.store.Upsert(ctx, rec)
	if err != nil {
		log.ErrorContext(ctx, "persist account failed", logging.Err(err))
		return nil, err
	}

	log.InfoContext(ctx, "account connected",
		logging.AccountID(acc.ID),
		logging.Email(acc.Email),
		slog.String("access_token", logging.SanitizeToken(acc.AccessToken)),
		slog.Bool("has_refresh_token", acc.HasRefreshToken()),
	)
	return acc, nil
}

func (s *Service) lookupEmail(ctx context.Context, accessToken string) *string {
	if s.profile == nil {
		return nil
	}
	email, err := s.profile.ProfileEmail(ctx, accessToken)
	if err != nil {
		s.logger.WarnContext(ctx, "profile lookup failed, storing account without email",
			logging.Operation("profile_lookup"), logging.Err(err))
		return nil
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	return &email
}

// IsFresh reports whether acc's access token can be used as-is at now:
// either no expiry is tracked or it lies more than Skew ahead.
func IsFresh(acc *models.AccountToken, now time.Time) bool {
	if acc.ExpiresAt == nil {
		return true
	}
	return acc.ExpiresAt.After(now.Add(Skew))
}

// EnsureValidAccessToken returns an access token for acc that is valid now,
// refreshing it at most once when stale. On refresh acc is updated in place
// with the persisted values.
func (s *Service) EnsureValidAccessToken(ctx context.Context, acc *models.AccountToken) (string, error) {
	if IsFresh(acc, s.now()) {
		metrics.TokenValidHits.Inc()
		return acc.AccessToken, nil
	}
	if !acc.HasRefreshToken() {
		s.logger.WarnContext(ctx, "access token stale and no refresh token",
			logging.Operation("ensure_token"), logging.AccountID(acc.ID))
		return "", ErrReauthRequired
	}

	updated, err := s.refresh(ctx, acc)
	if err != nil {
		return "", err
	}
	*acc = *updated
	return acc.AccessToken, nil
}

// ForceRefresh refreshes the account's access token regardless of expiry.
func (s *Service) ForceRefresh(ctx context.Context, id string) (*models.AccountToken, error) {
	acc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acc.HasRefreshToken() {
		return nil, ErrReauthRequired
	}
	return s.refresh(ctx, acc)
}

// refresh performs one refresh grant and persists the result. Storage is
// written only after a complete response.
func (s *Service) refresh(ctx context.Context, acc *models.AccountToken) (_ *models.AccountToken, err error) {
	defer func() { metrics.RecordRefresh(err == nil) }()
	log := s.logger.With(logging.Operation("token_refresh"), logging.AccountID(acc.ID))

	resp, err := s.oauth.Refresh(ctx, *acc.RefreshToken)
	if err != nil {
		if isPermanentRefreshError(err) {
			log.ErrorContext(ctx, "refresh token rejected, account needs re-authorization", logging.Err(err))
		} else {
			log.ErrorContext(ctx, "refresh failed", logging.Err(err))
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	if resp.AccessToken == "" {
		log.ErrorContext(ctx, "refresh returned no access token")
		return nil, fmt.Errorf("%w: missing access_token", ErrTokenRefresh)
	}

	u := db.TokenUpdate{
		AccessToken: resp.AccessToken,
		ExpiresAt:   s.oauth.ComputeExpiresAt(resp.ExpiresIn),
	}
	if resp.Scope != "" {
		u.Scope = &resp.Scope
	}
	if resp.TokenType != "" {
		u.TokenType = &resp.TokenType
	}

	updated, err := s.store.UpdateTokens(ctx, acc.ID, u)
	if err != nil {
		log.ErrorContext(ctx, "persist refreshed token failed", logging.Err(err))
		return nil, err
	}
	log.InfoContext(ctx, "access token refreshed",
		slog.String("access_token", logging.SanitizeToken(updated.AccessToken)),
		slog.Any("expires_at", updated.ExpiresAt),
	)
	return updated, nil
}

// ResolveAccount picks the target account: by id when given, else by email,
// else the most recently updated one. db.ErrNotFound when nothing matches.
func (s *Service) ResolveAccount(ctx context.Context, id, email string) (*models.AccountToken, error) {
	id = strings.TrimSpace(id)
	email = strings.TrimSpace(email)
	switch {
	case id != "":
		return s.store.GetByID(ctx, id)
	case email != "":
		return s.store.GetByEmail(ctx, email)
	default:
		return s.store.Latest(ctx)
	}
}

// AccessTokenFor resolves an account and returns a valid access token for it.
func (s *Service) AccessTokenFor(ctx context.Context, id, email string) (*models.AccountToken, string, error) {
	acc, err := s.ResolveAccount(ctx, id, email)
	if err != nil {
		return nil, "", err
	}
	tok, err := s.EnsureValidAccessToken(ctx, acc)
	if err != nil {
		return acc, "", err
	}
	return acc, tok, nil
}

// RefreshResult reports the outcome of RefreshAll for one account.
type RefreshResult struct {
	Account   models.AccountToken
	Refreshed bool
	Err       error
}

// RefreshAll runs EnsureValidAccessToken over every stored account, one at
// a time. Per-account failures are reported, not returned.
func (s *Service) RefreshAll(ctx context.Context) ([]RefreshResult, error) {
	accounts, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]RefreshResult, 0, len(accounts))
	for i := range accounts {
		acc := accounts[i]
		stale := !IsFresh(&acc, s.now())
		_, err := s.EnsureValidAccessToken(ctx, &acc)
		results = append(results, RefreshResult{
			Account:   acc,
			Refreshed: stale && err == nil,
			Err:       err,
		})
	}
	return results, nil
}

// IsNotFound reports whether err means no account matched.
func IsNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
