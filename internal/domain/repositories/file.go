package repositories

import (
	"context"

	"foldershare/internal/domain/models"
)

// FileRepository defines data access for stored file records.
type FileRepository interface {
	// Create inserts a new stored file record.
	Create(ctx context.Context, file *models.StoredFile) error

	// GetByID retrieves a stored file by ID.
	GetByID(ctx context.Context, id string) (*models.StoredFile, error)

	// Delete removes the record. Missing rows are not an error.
	Delete(ctx context.Context, id string) error
}
