package middleware

import (
	"net/http"
	"strings"

	"foldershare/internal/auth"
	"foldershare/internal/domain/models"
	"foldershare/internal/httputil"
)

// Auth validates the bearer token, if any, and attaches the user to the
// request context. Requests without a token continue as the anonymous
// user: public shares are reachable without authentication, and the
// access layer decides what anonymous may see. A token that is present
// but invalid is rejected outright.
func Auth(verifier auth.JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				httputil.RespondError(w, http.StatusUnauthorized, "malformed Authorization header")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user := models.User{
				ID:    claims.Subject,
				Admin: claims.Role == models.AdminRole,
			}
			next.ServeHTTP(w, httputil.WithUser(r, user))
		})
	}
}
