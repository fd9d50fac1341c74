package httputil

import (
	"context"
	"net/http"

	"foldershare/internal/domain/models"
)

// Context key type to avoid collisions
type contextKey string

const userKey contextKey = "user"

// WithUser adds the authenticated user to the request context.
func WithUser(r *http.Request, user models.User) *http.Request {
	ctx := context.WithValue(r.Context(), userKey, user)
	return r.WithContext(ctx)
}

// GetUser retrieves the user from the context. The zero value (anonymous
// user) is returned for unauthenticated requests.
func GetUser(r *http.Request) models.User {
	user, _ := r.Context().Value(userKey).(models.User)
	return user
}

// UserFromContext retrieves the user from a bare context, for callers
// below the HTTP layer.
func UserFromContext(ctx context.Context) models.User {
	user, _ := ctx.Value(userKey).(models.User)
	return user
}
