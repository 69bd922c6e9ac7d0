package models

import "time"

// DefaultTokenType is stored when the authorization server omits token_type.
const DefaultTokenType = "Bearer"

// AccountToken stores the OAuth credential for one connected Gmail mailbox.
type AccountToken struct {
	ID           string     `gorm:"primaryKey" json:"id"` // UUID
	Email        *string    `gorm:"uniqueIndex" json:"email"`
	AccessToken  string     `gorm:"not null" json:"-"`
	RefreshToken *string    `json:"-"` // never cleared by a write that omits it
	TokenType    string     `gorm:"default:Bearer" json:"token_type"`
	Scope        string     `json:"scope"`      // space-delimited
	ExpiresAt    *time.Time `json:"expires_at"` // nil means no expiry tracking
	CreatedAt    time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime:false;index" json:"updated_at"`
}

// TableName keeps the table name stable across backends.
func (AccountToken) TableName() string {
	return "gmail_account_tokens"
}

// HasRefreshToken reports whether a non-empty refresh token is stored.
func (a *AccountToken) HasRefreshToken() bool {
	return a.RefreshToken != nil && *a.RefreshToken != ""
}

// EmailOrEmpty returns the email, or "" when unknown.
func (a *AccountToken) EmailOrEmpty() string {
	if a.Email == nil {
		return ""
	}
	return *a.Email
}
