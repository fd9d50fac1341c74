package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
)

// Delete removes an item and, for folders, its whole subtree.
//
// The protocol runs visible → locked → hidden → deleting-children →
// deleted, with a lock-failed exit that mutates nothing. Locks on the
// item and its parent are held only long enough to flip the hidden flag:
// once the item is invisible no new operation can reach it, so the slow
// recursive phase runs unlocked. A redundant queue task is enqueued
// first so an interrupted delete is finished on a later worker pass.
//
// Children that lose their lock race are skipped and stay alive;
// already-deleted descendants stay deleted. Partial progress is never
// rolled back.
func (s *ItemService) Delete(ctx context.Context, user models.User, id string) error {
	item, err := s.access.Load(ctx, user, id, OpAuthor)
	if err != nil {
		return err
	}

	if !s.tryLock(item.ID) {
		return &domain.LockError{
			Message: fmt.Sprintf("%q is in use by another operation; try again shortly", item.Name),
			ItemID:  item.ID,
		}
	}
	if item.ParentID != nil {
		if !s.tryLock(*item.ParentID) {
			s.unlock(item.ID)
			return &domain.LockError{
				Message: fmt.Sprintf("the folder containing %q is in use; try again shortly", item.Name),
				ItemID:  *item.ParentID,
			}
		}
	}

	// Hiding makes the subtree invisible to every listing and lookup
	// immediately, long before rows actually go away.
	if err := s.itemRepo.SetHidden(ctx, item.ID, true); err != nil {
		if item.ParentID != nil {
			s.unlock(*item.ParentID)
		}
		s.unlock(item.ID)
		return err
	}

	if item.IsRoot() {
		if err := s.grantRepo.ClearRoot(ctx, item.ID); err != nil {
			s.logger.Warn("failed to clear grants on deleted root", "item_id", item.ID, "error", err)
		}
	}

	// Locks released before the slow phase; the hidden flag is what
	// keeps other operations out now.
	if item.ParentID != nil {
		s.unlock(*item.ParentID)
	}
	s.unlock(item.ID)

	task := &models.Task{
		ID:        uuid.NewString(),
		Operation: models.TaskOpDelete,
		ItemIDs:   []string{item.ID},
		CreatedAt: time.Now(),
	}
	if err := s.taskRepo.Enqueue(ctx, task); err != nil {
		// The synchronous pass below still runs; only the interruption
		// safety net is missing.
		s.logger.Warn("failed to enqueue delete continuation", "item_id", item.ID, "error", err)
	}

	if err := s.DeleteSubtree(ctx, item.ID); err != nil {
		return err
	}

	if err := s.taskRepo.CompleteByItems(ctx, models.TaskOpDelete, []string{item.ID}); err != nil {
		s.logger.Warn("failed to retire delete task", "item_id", item.ID, "error", err)
	}

	s.logActivity(user, "delete", "item_id", item.ID, "name", item.Name)
	return nil
}

// DeleteSubtree deletes an item and everything under it, bottom-up. It
// is the shared primitive behind the synchronous delete and the queue
// worker, and is idempotent: already-deleted items are silently skipped.
//
// A child whose lock cannot be taken is skipped; if any child was
// skipped the item's hidden flag is reverted so the survivors stay
// reachable, and a LockError reports the partial result.
func (s *ItemService) DeleteSubtree(ctx context.Context, id string) error {
	item, err := s.itemRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	if item.IsFolder() {
		children, err := s.itemRepo.ListChildren(ctx, item.ID)
		if err != nil {
			return err
		}

		var failed []string
		for _, child := range children {
			if !s.tryLock(child.ID) {
				failed = append(failed, child.ID)
				continue
			}
			// Release before recursing to keep lock hold times short;
			// descending into the child re-checks everything it needs.
			s.unlock(child.ID)

			if err := s.DeleteSubtree(ctx, child.ID); err != nil {
				if errors.Is(err, domain.ErrLocked) {
					failed = append(failed, child.ID)
					continue
				}
				return err
			}
		}

		if len(failed) > 0 {
			if err := s.itemRepo.SetHidden(ctx, item.ID, false); err != nil {
				s.logger.Warn("failed to revert hidden flag", "item_id", item.ID, "error", err)
			}
			return &domain.LockError{
				Message: fmt.Sprintf("%d items under %q are in use and were not deleted", len(failed), item.Name),
				ItemID:  item.ID,
			}
		}
	}

	return s.deleteOne(ctx, item)
}

// deleteOne removes a single item row and, for file-like items, the
// wrapped stored file it exclusively owns. The reference field is
// cleared before the stored file goes away so a crash between the two
// steps leaves no dangling pointer.
func (s *ItemService) deleteOne(ctx context.Context, item *models.Item) error {
	if item.IsFolder() {
		// Deleting the children has already walked this folder's size
		// down; re-read so the ancestor adjustment below uses what is
		// left, not the size captured before the descent.
		fresh, err := s.itemRepo.GetByID(ctx, item.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		item = fresh
	}

	if item.HasStoredFile() {
		fileID := *item.FileID
		item.FileID = nil
		item.UpdatedAt = time.Now()
		if err := s.itemRepo.Update(ctx, item); err != nil {
			return err
		}

		file, err := s.fileRepo.GetByID(ctx, fileID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Already gone; a previous interrupted pass got this far.
		case err != nil:
			return err
		default:
			if err := s.store.Delete(ctx, file.Key); err != nil {
				return err
			}
			if err := s.fileRepo.Delete(ctx, fileID); err != nil {
				return err
			}
		}
	}

	if err := s.itemRepo.Delete(ctx, item.ID); err != nil {
		return err
	}

	return s.adjustAncestorSizes(ctx, item.ParentID, -item.Size)
}
