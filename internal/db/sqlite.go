package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pysugar/gmail-agent-nexus/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the SQLite database connection and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; serialize through a single connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.AccountToken{}); err != nil {
		return nil, err
	}
	return db, nil
}

// SQLiteStore is the gorm-backed TokenStore.
type SQLiteStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLiteStore wraps an initialized gorm handle.
func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock used for created_at/updated_at.
func (s *SQLiteStore) WithClock(now func() time.Time) *SQLiteStore {
	s.now = func() time.Time { return now().UTC() }
	return s
}

// Upsert implements TokenStore.
func (s *SQLiteStore) Upsert(ctx context.Context, tok *models.AccountToken) (*models.AccountToken, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrEmptyAccessToken
	}
	email := normalizeEmail(tok.Email)

	var saved models.AccountToken
	upsert := func(tx *gorm.DB) error {
		now := s.now()
		if email != nil {
			var existing models.AccountToken
			err := tx.Where("email = ?", *email).First(&existing).Error
			if err == nil {
				mergeInto(&existing, tok, now)
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
				saved = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		rec := models.AccountToken{
			ID:          uuid.New().String(),
			Email:       email,
			AccessToken: tok.AccessToken,
			TokenType:   tokenTypeOrDefault(tok.TokenType),
			Scope:       tok.Scope,
			ExpiresAt:   utcPtr(tok.ExpiresAt),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if nonEmpty(tok.RefreshToken) {
			rec.RefreshToken = tok.RefreshToken
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		saved = rec
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(upsert)
	if err != nil && isUniqueViolation(err) {
		// Lost an insert race on the same email; the row exists now.
		err = s.db.WithContext(ctx).Transaction(upsert)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return &saved, nil
}

// UpdateTokens implements TokenStore.
func (s *SQLiteStore) UpdateTokens(ctx context.Context, id string, u TokenUpdate) (*models.AccountToken, error) {
	if u.AccessToken == "" {
		return nil, ErrEmptyAccessToken
	}

	var acc models.AccountToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&acc, "id = ?", id).Error; err != nil {
			return err
		}
		applyUpdate(&acc, u, s.now())
		return tx.Save(&acc).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &acc, nil
}

// GetByID implements TokenStore.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*models.AccountToken, error) {
	var acc models.AccountToken
	if err := s.db.WithContext(ctx).First(&acc, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &acc, nil
}

// GetByEmail implements TokenStore.
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (*models.AccountToken, error) {
	var acc models.AccountToken
	if err := s.db.WithContext(ctx).Where("email = ?", strings.TrimSpace(email)).First(&acc).Error; err != nil {
		return nil, translate(err)
	}
	return &acc, nil
}

// Latest implements TokenStore.
func (s *SQLiteStore) Latest(ctx context.Context) (*models.AccountToken, error) {
	var acc models.AccountToken
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Order("created_at DESC").First(&acc).Error; err != nil {
		return nil, translate(err)
	}
	return &acc, nil
}

// List implements TokenStore.
func (s *SQLiteStore) List(ctx context.Context) ([]models.AccountToken, error) {
	var accounts []models.AccountToken
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// Close implements TokenStore.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}
