// Package state signs and verifies the opaque OAuth state parameter that
// binds an authorization redirect to its callback.
//
// A token is base64url(payload) + "." + base64url(HMAC-SHA256(payload)),
// unpadded. The payload carries issue time, expiry and a random nonce and
// nothing else. Tokens are not tracked after verification, so a captured
// token can be replayed until it expires.
package state

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultMaxAge is the lifetime of a state token when none is given.
const DefaultMaxAge = 600 * time.Second

const nonceBytes = 24

var b64 = base64.RawURLEncoding

type payload struct {
	IssuedAt  int64  `json:"ts"`
	ExpiresAt int64  `json:"exp"`
	Nonce     string `json:"nonce"`
}

// Codec creates and verifies state tokens for one secret.
type Codec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewCodec returns a Codec. A non-positive maxAge falls back to DefaultMaxAge.
func NewCodec(secret string, maxAge time.Duration) *Codec {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Codec{secret: []byte(secret), maxAge: maxAge, now: time.Now}
}

// WithClock returns a copy of c that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// Create mints a new signed state token.
func (c *Codec) Create() (string, error) {
	if len(c.secret) == 0 {
		return "", errors.New("state secret is empty")
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	issued := c.now().Unix()
	raw, err := json.Marshal(payload{
		IssuedAt:  issued,
		ExpiresAt: issued + int64(c.maxAge/time.Second),
		Nonce:     b64.EncodeToString(nonce),
	})
	if err != nil {
		return "", err
	}

	encoded := b64.EncodeToString(raw)
	return encoded + "." + b64.EncodeToString(c.sign(encoded)), nil
}

// Verify reports whether token was issued under this codec's secret and has
// not expired. It never panics on malformed input.
func (c *Codec) Verify(token string) bool {
	if len(c.secret) == 0 {
		return false
	}

	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || sig == "" {
		return false
	}

	given, err := b64.DecodeString(sig)
	if err != nil {
		return false
	}
	if !hmac.Equal(given, c.sign(encoded)) {
		return false
	}

	raw, err := b64.DecodeString(encoded)
	if err != nil {
		return false
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return false
	}
	if p.ExpiresAt == 0 {
		return false
	}
	return c.now().Unix() <= p.ExpiresAt
}

func (c *Codec) sign(encoded string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encoded))
	return mac.Sum(nil)
}

// Create mints a state token signed with secret, valid for maxAge.
func Create(secret string, maxAge time.Duration) (string, error) {
	return NewCodec(secret, maxAge).Create()
}

// Verify checks token against secret using the current time.
func Verify(token, secret string) bool {
	return NewCodec(secret, 0).Verify(token)
}
