package auth

import "foldershare/internal/domain/models"

// JWTVerifier validates bearer tokens for the auth middleware. The
// JWKS-backed implementation holds background refresh state, hence Close.
type JWTVerifier interface {
	VerifyToken(tokenString string) (*models.Claims, error)
	Close() error
}
