package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/domain/repositories"
)

// PostgresFileRepository implements the FileRepository interface.
type PostgresFileRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewFileRepository creates a new stored-file repository.
func NewFileRepository(config *RepositoryConfig) repositories.FileRepository {
	return &PostgresFileRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create inserts a new stored file record.
func (r *PostgresFileRepository) Create(ctx context.Context, file *models.StoredFile) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, storage_key, filename, mime_type, size, scheme, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		file.ID,
		file.OwnerID,
		file.Key,
		file.Filename,
		file.MimeType,
		file.Size,
		file.Scheme,
		file.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create stored file: %w", err)
	}

	return nil
}

// GetByID retrieves a stored file by ID.
func (r *PostgresFileRepository) GetByID(ctx context.Context, id string) (*models.StoredFile, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, storage_key, filename, mime_type, size, scheme, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Files)

	var file models.StoredFile
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&file.ID,
		&file.OwnerID,
		&file.Key,
		&file.Filename,
		&file.MimeType,
		&file.Size,
		&file.Scheme,
		&file.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("stored file %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get stored file: %w", err)
	}

	return &file, nil
}

// Delete removes the record. Missing rows are not an error.
func (r *PostgresFileRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete stored file: %w", err)
	}

	return nil
}
