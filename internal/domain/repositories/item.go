package repositories

import (
	"context"

	"foldershare/internal/domain/models"
)

// ItemRepository defines data access for tree items.
//
// Lookups return hidden and disabled rows as stored; deciding how those
// flags surface to callers (not-found for hidden, forbidden for
// disabled) is the service layer's job. Listing methods exclude hidden
// rows so in-progress deletes disappear from the UI immediately.
type ItemRepository interface {
	// Create inserts a new item.
	Create(ctx context.Context, item *models.Item) error

	// GetByID retrieves an item by ID, hidden or not.
	GetByID(ctx context.Context, id string) (*models.Item, error)

	// Update saves name, parent, root, mime, size, and flag changes.
	Update(ctx context.Context, item *models.Item) error

	// Delete removes the row. Missing rows are not an error so that
	// queue-driven delete retries stay idempotent.
	Delete(ctx context.Context, id string) error

	// ListChildren lists the non-hidden immediate children of a folder,
	// ordered by name.
	ListChildren(ctx context.Context, parentID string) ([]models.Item, error)

	// ListRoots lists the non-hidden root items owned by ownerID.
	ListRoots(ctx context.Context, ownerID string) ([]models.Item, error)

	// ListSharedRoots lists non-hidden roots with a grant for userID.
	ListSharedRoots(ctx context.Context, userID string) ([]models.Item, error)

	// ChildByName finds a non-hidden child by exact name, or
	// domain.ErrNotFound.
	ChildByName(ctx context.Context, parentID *string, ownerID, name string) (*models.Item, error)

	// SetHidden flips the hidden flag without touching other columns.
	SetHidden(ctx context.Context, id string, hidden bool) error

	// SetRootForSubtree repoints root_id for every descendant of itemID
	// (itself excluded) to newRootID. Used when a move crosses trees.
	SetRootForSubtree(ctx context.Context, itemID, newRootID string) error

	// AdjustSize adds delta (possibly negative) to a folder's size.
	AdjustSize(ctx context.Context, id string, delta int64) error

	// Search finds non-hidden items visible to ownerID whose name (or,
	// when filenames is true, wrapped filename) matches query.
	Search(ctx context.Context, ownerID, query string, filenames bool) ([]models.Item, error)

	// Usage aggregates per-user folder, file, and byte counts.
	Usage(ctx context.Context, ownerID string) (*Usage, error)
}

// Usage summarizes what a user owns.
type Usage struct {
	UserID  string `json:"user_id"`
	Roots   int64  `json:"roots"`
	Folders int64  `json:"folders"`
	Files   int64  `json:"files"`
	Bytes   int64  `json:"bytes"`
}
