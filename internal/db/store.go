package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pysugar/gmail-agent-nexus/internal/db/models"
)

var (
	// ErrNotFound is returned when no account matches a lookup.
	ErrNotFound = errors.New("account not found")
	// ErrEmptyAccessToken rejects writes that would persist a blank credential.
	ErrEmptyAccessToken = errors.New("access token must not be empty")
)

// TokenUpdate carries the fields written by an access-token refresh. Nil
// Scope or TokenType leaves the stored value unchanged; the refresh token is
// never touched.
type TokenUpdate struct {
	AccessToken string
	ExpiresAt   *time.Time
	Scope       *string
	TokenType   *string
}

// TokenStore persists one AccountToken per connected mailbox.
type TokenStore interface {
	// Upsert inserts tok, or updates the existing row with the same non-nil
	// email. A stored refresh token survives an update that omits one.
	Upsert(ctx context.Context, tok *models.AccountToken) (*models.AccountToken, error)
	// UpdateTokens applies a refresh result to the account with id.
	UpdateTokens(ctx context.Context, id string, u TokenUpdate) (*models.AccountToken, error)
	GetByID(ctx context.Context, id string) (*models.AccountToken, error)
	GetByEmail(ctx context.Context, email string) (*models.AccountToken, error)
	// Latest returns the most recently updated account.
	Latest(ctx context.Context) (*models.AccountToken, error)
	List(ctx context.Context) ([]models.AccountToken, error)
	Close() error
}

// Open picks a TokenStore implementation from the connection string:
// postgres:// and postgresql:// use pgx, anything else is a SQLite path
// (sqlite:///relative.db, sqlite:////abs.db, file:..., or a bare path).
func Open(ctx context.Context, dsn string) (TokenStore, error) {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(ctx, dsn)
	}

	gdb, err := InitDB(SQLitePath(dsn))
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(gdb), nil
}

// SQLitePath converts an SQLAlchemy-style sqlite URL to a driver path.
func SQLitePath(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "sqlite:///"):
		return strings.TrimPrefix(dsn, "sqlite:///")
	case strings.HasPrefix(dsn, "sqlite://"):
		return strings.TrimPrefix(dsn, "sqlite://")
	default:
		return dsn
	}
}

// normalizeEmail trims the email and maps blank to nil.
func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	e := strings.TrimSpace(*email)
	if e == "" {
		return nil
	}
	return &e
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}

// laterOf keeps updated_at from moving backwards when clocks disagree.
func laterOf(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// mergeInto applies an upsert of incoming onto existing.
func mergeInto(existing, incoming *models.AccountToken, now time.Time) {
	existing.AccessToken = incoming.AccessToken
	if nonEmpty(incoming.RefreshToken) {
		existing.RefreshToken = incoming.RefreshToken
	}
	existing.TokenType = tokenTypeOrDefault(incoming.TokenType)
	existing.Scope = incoming.Scope
	existing.ExpiresAt = utcPtr(incoming.ExpiresAt)
	existing.UpdatedAt = laterOf(existing.UpdatedAt, now)
}

// applyUpdate applies a refresh result onto acc.
func applyUpdate(acc *models.AccountToken, u TokenUpdate, now time.Time) {
	acc.AccessToken = u.AccessToken
	acc.ExpiresAt = utcPtr(u.ExpiresAt)
	if u.Scope != nil {
		acc.Scope = *u.Scope
	}
	if nonEmpty(u.TokenType) {
		acc.TokenType = *u.TokenType
	}
	acc.UpdatedAt = laterOf(acc.UpdatedAt, now)
}

func tokenTypeOrDefault(t string) string {
	if t == "" {
		return models.DefaultTokenType
	}
	return t
}

var (
	_ TokenStore = (*SQLiteStore)(nil)
	_ TokenStore = (*PostgresStore)(nil)
)
