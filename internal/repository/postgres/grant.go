package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"foldershare/internal/domain/models"
	"foldershare/internal/domain/repositories"
)

// PostgresGrantRepository implements the GrantRepository interface.
type PostgresGrantRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewGrantRepository creates a new share-grant repository.
func NewGrantRepository(config *RepositoryConfig) repositories.GrantRepository {
	return &PostgresGrantRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// ListByRoot returns every grant on a root item.
func (r *PostgresGrantRepository) ListByRoot(ctx context.Context, rootID string) ([]models.Grant, error) {
	query := fmt.Sprintf(`
		SELECT root_id, user_id, access, created_at
		FROM %s
		WHERE root_id = $1
		ORDER BY user_id
	`, r.tables.Grants)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, rootID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []models.Grant
	for rows.Next() {
		var grant models.Grant
		if err := rows.Scan(&grant.RootID, &grant.UserID, &grant.Access, &grant.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}

	return grants, nil
}

// Set grants a user access on a root, replacing any existing grant.
func (r *PostgresGrantRepository) Set(ctx context.Context, grant *models.Grant) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (root_id, user_id, access, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (root_id, user_id) DO UPDATE SET access = EXCLUDED.access
	`, r.tables.Grants)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, grant.RootID, grant.UserID, grant.Access, grant.CreatedAt)
	if err != nil {
		return fmt.Errorf("set grant: %w", err)
	}

	return nil
}

// Remove deletes the grant for a user on a root, if any.
func (r *PostgresGrantRepository) Remove(ctx context.Context, rootID, userID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE root_id = $1 AND user_id = $2`, r.tables.Grants)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, rootID, userID); err != nil {
		return fmt.Errorf("remove grant: %w", err)
	}

	return nil
}

// ClearRoot deletes every grant on a root.
func (r *PostgresGrantRepository) ClearRoot(ctx context.Context, rootID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE root_id = $1`, r.tables.Grants)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, rootID); err != nil {
		return fmt.Errorf("clear grants: %w", err)
	}

	return nil
}
