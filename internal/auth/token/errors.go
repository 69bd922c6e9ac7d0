package token

import (
	"errors"
	"strings"
)

// Error taxonomy for the token lifecycle. Callers classify with errors.Is;
// the HTTP layer maps each to a status and reason code.
var (
	// ErrConfiguration means OAuth client credentials are missing.
	ErrConfiguration = errors.New("oauth client is not configured")
	// ErrInvalidState means the callback state was forged, expired or malformed.
	ErrInvalidState = errors.New("invalid or expired state")
	// ErrTokenExchange means the authorization_code grant failed.
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrTokenRefresh means the refresh_token grant failed or returned no access token.
	ErrTokenRefresh = errors.New("token refresh failed")
	// ErrReauthRequired means the account has no refresh token; the user must
	// run the authorization flow again.
	ErrReauthRequired = errors.New("re-authorization required")
)

// isPermanentRefreshError reports whether a refresh failure will not go
// away on retry (revoked or invalid grant).
func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
