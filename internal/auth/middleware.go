package auth

import (
	"net/http"
	"strings"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	healthPath          = "/healthz"
)

// Middleware requires a valid bearer token on every request except CORS preflights and the
// health check. A nil verifier disables authentication.
func Middleware(verifier *JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || r.URL.Path == healthPath {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get(authorizationHeader)
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			user, err := verifier.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
