package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth gates the portfolio API behind a single operator key, accepted either
// as an X-API-Key header or a Bearer token. An empty key disables the check,
// which is the expected setup in local development.
//
// This is deliberately a shared-secret scheme: the API fronts back-office
// tooling, not end users, so there are no per-user identities to manage.
func Auth(apiKey string) func(http.Handler) http.Handler {
	secret := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			presented, ok := requestKey(r)
			if !ok {
				unauthorized(w, "missing API key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), secret) != 1 {
				unauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestKey pulls the presented key from X-API-Key or, failing that, from a
// Bearer Authorization header.
func requestKey(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}

	auth := r.Header.Get("Authorization")
	if scheme, rest, found := strings.Cut(auth, " "); found && strings.EqualFold(scheme, "Bearer") {
		if token := strings.TrimSpace(rest); token != "" {
			return token, true
		}
	}

	return "", false
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
