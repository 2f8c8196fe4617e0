package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/formlab/formd/internal/log"
)

// ExtractToken retrieves the API token from the request.
// 1. Authorization: Bearer <token>
// 2. Header: X-API-Token
func ExtractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if t := r.Header.Get("X-API-Token"); t != "" {
		return t
	}
	return ""
}

// AuthorizeToken returns true if got matches expected using constant-time
// comparison. Empty tokens are always unauthorized.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// requireToken enforces API token authentication on mutating endpoints.
// With no token configured the endpoints stay open; read endpoints never
// pass through here.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.API.Token
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		logger := log.WithComponentFromContext(r.Context(), "auth")

		reqToken := ExtractToken(r)
		if reqToken == "" {
			logger.Warn().Str("event", "auth.missing_token").Str("path", r.URL.Path).Msg("authorization header missing")
			RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		if !AuthorizeToken(reqToken, token) {
			logger.Warn().Str("event", "auth.invalid_token").Str("path", r.URL.Path).Msg("invalid api token")
			RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
