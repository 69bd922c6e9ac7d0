package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const corsMaxAge = 600

// CORS builds the go-chi/cors handler for origins. Credentials are allowed,
// so a "*" entry echoes the request origin instead of sending a literal
// wildcard.
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	}

	var allowed []string
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
			allowed = nil
			break
		}
		if o != "" {
			allowed = append(allowed, o)
		}
	}
	opts.AllowedOrigins = allowed
	if opts.AllowOriginFunc == nil && len(allowed) == 0 {
		// nothing configured: deny cross-origin requests
		opts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}
	return cors.Handler(opts)
}
