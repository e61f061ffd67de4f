// Package middleware holds the HTTP middleware shared by zenyth's
// HTTP surfaces.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ErrorWriter renders an error response. A nil ErrorWriter falls back to
// http.Error.
type ErrorWriter func(w http.ResponseWriter, status int, message string)

func (e ErrorWriter) write(w http.ResponseWriter, status int, message string) {
	if e == nil {
		http.Error(w, message, status)
		return
	}
	e(w, status, message)
}

// Auth checks the Authorization header. A header that is present must
// be a Bearer token. When token is non-empty the header is required and
// must match it. /health always bypasses auth.
func Auth(token string, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if token == "" {
					next.ServeHTTP(w, r)
					return
				}
				onError.write(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				onError.write(w, http.StatusUnauthorized, "Invalid authorization header format, expected 'Bearer <token>'")
				return
			}

			if token != "" && subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
				onError.write(w, http.StatusUnauthorized, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
