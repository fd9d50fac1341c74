package models

import "github.com/golang-jwt/jwt/v5"

// AdminRole is the role claim value that marks a site administrator.
// Administrators pass every access check and may read usage and edit
// settings.
const AdminRole = "administrator"

// Claims are the JWT claims this service consumes. Subject is the user
// ID; Role optionally elevates the user to administrator.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// User is the authenticated principal attached to a request context.
// The zero value represents the anonymous user.
type User struct {
	ID    string
	Admin bool
}

// Anonymous reports whether the user is unauthenticated.
func (u User) Anonymous() bool {
	return u.ID == "" || u.ID == AnonymousUserID
}
