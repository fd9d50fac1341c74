package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"foldershare/internal/config"
	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/domain/repositories"
)

// Worker drains the deferred-work queue. Synchronous deletes enqueue a
// redundant task before they start, so any delete cut short by a crash
// or restart is picked up here and resumed from wherever it stopped.
type Worker struct {
	taskRepo repositories.TaskRepository
	items    *ItemService
	settings *config.SettingsStore
	logger   *slog.Logger
}

func NewWorker(taskRepo repositories.TaskRepository, items *ItemService, settings *config.SettingsStore, logger *slog.Logger) *Worker {
	return &Worker{
		taskRepo: taskRepo,
		items:    items,
		settings: settings,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled. The interval is re-read from the
// settings store each cycle so an admin change takes effect without a
// restart.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("queue worker started")
	for {
		interval := time.Duration(w.settings.Current().QueuePollInterval)
		select {
		case <-ctx.Done():
			w.logger.Info("queue worker stopped")
			return
		case <-time.After(interval):
			w.drain(ctx)
		}
	}
}

// drain claims and runs tasks until the queue is empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := w.taskRepo.Claim(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		if err != nil {
			w.logger.Error("claim task", "error", err)
			return
		}

		if err := w.runTask(ctx, task); err != nil {
			w.retry(ctx, task, err)
			// End the pass so a requeued task waits at least one poll
			// interval instead of being reclaimed immediately.
			return
		}
	}
}

func (w *Worker) runTask(ctx context.Context, task *models.Task) error {
	switch task.Operation {
	case models.TaskOpDelete:
		for _, id := range task.ItemIDs {
			if err := w.items.DeleteSubtree(ctx, id); err != nil {
				return err
			}
		}
		return nil
	default:
		// Unknown operations are dropped, not requeued; retrying will
		// never help.
		w.logger.Error("unknown task operation", "task_id", task.ID, "operation", task.Operation)
		return nil
	}
}

// retry requeues a failed task unless it has run out of attempts.
// Lock contention is the expected failure mode and is logged quietly.
func (w *Worker) retry(ctx context.Context, task *models.Task, cause error) {
	var lockErr *domain.LockError
	if errors.As(cause, &lockErr) {
		w.logger.Info("task blocked by lock, will retry",
			"task_id", task.ID, "operation", task.Operation, "attempts", task.Attempts)
	} else {
		w.logger.Error("task failed",
			"task_id", task.ID, "operation", task.Operation, "attempts", task.Attempts, "error", cause)
	}

	if task.Attempts+1 >= config.MaxTaskAttempts {
		w.logger.Error("task dropped after too many attempts",
			"task_id", task.ID, "operation", task.Operation, "item_ids", task.ItemIDs)
		return
	}

	if err := w.taskRepo.Requeue(ctx, task); err != nil {
		w.logger.Error("requeue task", "task_id", task.ID, "error", err)
	}
}
