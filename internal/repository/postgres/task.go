package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/domain/repositories"
)

// PostgresTaskRepository implements the TaskRepository interface on a
// plain table drained oldest-first.
type PostgresTaskRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(config *RepositoryConfig) repositories.TaskRepository {
	return &PostgresTaskRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Enqueue inserts a task.
func (r *PostgresTaskRepository) Enqueue(ctx context.Context, task *models.Task) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, operation, item_ids, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.tables.Tasks)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		task.ID,
		task.Operation,
		task.ItemIDs,
		task.Attempts,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	return nil
}

// Claim atomically removes and returns the oldest task. SKIP LOCKED
// keeps concurrent workers from claiming the same row.
func (r *PostgresTaskRepository) Claim(ctx context.Context) (*models.Task, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = (
			SELECT id FROM %s
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, operation, item_ids, attempts, created_at
	`, r.tables.Tasks, r.tables.Tasks)

	var task models.Task
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query).Scan(
		&task.ID,
		&task.Operation,
		&task.ItemIDs,
		&task.Attempts,
		&task.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("queue empty: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}

	return &task, nil
}

// Requeue puts a failed task back with its attempt count bumped.
func (r *PostgresTaskRepository) Requeue(ctx context.Context, task *models.Task) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, operation, item_ids, attempts, created_at)
		VALUES ($1, $2, $3, $4 + 1, $5)
	`, r.tables.Tasks)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		task.ID,
		task.Operation,
		task.ItemIDs,
		task.Attempts,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}

	return nil
}

// CompleteByItems removes pending tasks whose payload is a subset of the
// given item IDs, retiring redundant queue entries once the synchronous
// pass has finished.
func (r *PostgresTaskRepository) CompleteByItems(ctx context.Context, operation string, itemIDs []string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE operation = $1 AND item_ids <@ $2
	`, r.tables.Tasks)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, operation, itemIDs); err != nil {
		return fmt.Errorf("complete tasks: %w", err)
	}

	return nil
}
