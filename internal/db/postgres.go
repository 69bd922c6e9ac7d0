package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pysugar/gmail-agent-nexus/internal/db/models"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS gmail_account_tokens (
	id            TEXT PRIMARY KEY,
	email         TEXT UNIQUE,
	access_token  TEXT NOT NULL,
	refresh_token TEXT,
	token_type    TEXT NOT NULL DEFAULT 'Bearer',
	scope         TEXT NOT NULL DEFAULT '',
	expires_at    TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gmail_account_tokens_updated_at ON gmail_account_tokens (updated_at DESC);
`

const pgColumns = `id, email, access_token, refresh_token, token_type, scope, expires_at, created_at, updated_at`

// PostgresStore is the pgx-backed TokenStore.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres connects, pings and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Upsert implements TokenStore.
func (s *PostgresStore) Upsert(ctx context.Context, tok *models.AccountToken) (*models.AccountToken, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrEmptyAccessToken
	}
	email := normalizeEmail(tok.Email)
	var refresh *string
	if nonEmpty(tok.RefreshToken) {
		refresh = tok.RefreshToken
	}

	query := `INSERT INTO gmail_account_tokens (` + pgColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	if email != nil {
		query += `
ON CONFLICT (email) DO UPDATE SET
	access_token  = EXCLUDED.access_token,
	refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), gmail_account_tokens.refresh_token),
	token_type    = EXCLUDED.token_type,
	scope         = EXCLUDED.scope,
	expires_at    = EXCLUDED.expires_at,
	updated_at    = GREATEST(EXCLUDED.updated_at, gmail_account_tokens.updated_at)`
	}
	query += `
RETURNING ` + pgColumns

	row := s.pool.QueryRow(ctx, query,
		uuid.New().String(),
		email,
		tok.AccessToken,
		refresh,
		tokenTypeOrDefault(tok.TokenType),
		tok.Scope,
		utcPtr(tok.ExpiresAt),
		s.now(),
	)
	acc, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return acc, nil
}

// UpdateTokens implements TokenStore.
func (s *PostgresStore) UpdateTokens(ctx context.Context, id string, u TokenUpdate) (*models.AccountToken, error) {
	if u.AccessToken == "" {
		return nil, ErrEmptyAccessToken
	}
	row := s.pool.QueryRow(ctx, `UPDATE gmail_account_tokens SET
	access_token = $2,
	expires_at   = $3,
	scope        = COALESCE($4, scope),
	token_type   = COALESCE(NULLIF($5, ''), token_type),
	updated_at   = GREATEST($6, updated_at)
WHERE id = $1
RETURNING `+pgColumns,
		id, u.AccessToken, utcPtr(u.ExpiresAt), u.Scope, u.TokenType, s.now())
	return pgTranslate(scanAccount(row))
}

// GetByID implements TokenStore.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*models.AccountToken, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM gmail_account_tokens WHERE id = $1`, id)
	return pgTranslate(scanAccount(row))
}

// GetByEmail implements TokenStore.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*models.AccountToken, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM gmail_account_tokens WHERE email = $1`, strings.TrimSpace(email))
	return pgTranslate(scanAccount(row))
}

// Latest implements TokenStore.
func (s *PostgresStore) Latest(ctx context.Context) (*models.AccountToken, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM gmail_account_tokens
ORDER BY updated_at DESC, created_at DESC LIMIT 1`)
	return pgTranslate(scanAccount(row))
}

// List implements TokenStore.
func (s *PostgresStore) List(ctx context.Context) ([]models.AccountToken, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgColumns+` FROM gmail_account_tokens ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.AccountToken
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// Close implements TokenStore.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanAccount(row pgx.Row) (*models.AccountToken, error) {
	var acc models.AccountToken
	err := row.Scan(
		&acc.ID,
		&acc.Email,
		&acc.AccessToken,
		&acc.RefreshToken,
		&acc.TokenType,
		&acc.Scope,
		&acc.ExpiresAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func pgTranslate(acc *models.AccountToken, err error) (*models.AccountToken, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return acc, err
}
