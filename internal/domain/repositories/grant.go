package repositories

import (
	"context"

	"foldershare/internal/domain/models"
)

// GrantRepository defines data access for root-item share grants.
type GrantRepository interface {
	// ListByRoot returns every grant on a root item.
	ListByRoot(ctx context.Context, rootID string) ([]models.Grant, error)

	// Set grants userID the given access on rootID, replacing any
	// existing grant for the same user.
	Set(ctx context.Context, grant *models.Grant) error

	// Remove deletes the grant for userID on rootID, if any.
	Remove(ctx context.Context, rootID, userID string) error

	// ClearRoot deletes every grant on rootID.
	ClearRoot(ctx context.Context, rootID string) error
}
