// Package middleware holds the HTTP middleware installed in front of every
// route.
package middleware

import (
	"net"
	"net/http"
	"strings"
)

// TrustedHosts rejects requests whose Host header is not in allowed. An empty
// list or a "*" entry allows every host. Entries of the form "*.example.com"
// match any subdomain.
func TrustedHosts(allowed []string) func(http.Handler) http.Handler {
	allowAll := len(allowed) == 0
	exact := make(map[string]struct{}, len(allowed))
	var suffixes []string
	for _, h := range allowed {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case h == "*":
			allowAll = true
		case strings.HasPrefix(h, "*."):
			suffixes = append(suffixes, h[1:])
		case h != "":
			exact[h] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if allowAll {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := hostOnly(r.Host)
			if _, ok := exact[host]; ok {
				next.ServeHTTP(w, r)
				return
			}
			for _, s := range suffixes {
				if strings.HasSuffix(host, s) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Invalid host header", http.StatusBadRequest)
		})
	}
}

func hostOnly(hostport string) string {
	hostport = strings.ToLower(hostport)
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(hostport, "[]")
}
