package repositories

import (
	"context"

	"foldershare/internal/domain/models"
)

// TaskRepository defines data access for the deferred-work queue.
type TaskRepository interface {
	// Enqueue inserts a task.
	Enqueue(ctx context.Context, task *models.Task) error

	// Claim atomically removes and returns the oldest task, or
	// domain.ErrNotFound when the queue is empty.
	Claim(ctx context.Context) (*models.Task, error)

	// Requeue puts a failed task back with its attempt count bumped.
	Requeue(ctx context.Context, task *models.Task) error

	// CompleteByItems removes pending delete tasks that reference only
	// the given item IDs, so a finished synchronous delete retires its
	// redundant queue entry.
	CompleteByItems(ctx context.Context, operation string, itemIDs []string) error
}
