package service

import (
	"context"
	"fmt"
	"time"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
)

// ListGrants returns the share grants on an item's root. Viewable by
// anyone who can view the item; the grant list is what explains why
// they can.
func (s *ItemService) ListGrants(ctx context.Context, user models.User, id string) ([]models.Grant, error) {
	item, err := s.access.Load(ctx, user, id, OpView)
	if err != nil {
		return nil, err
	}
	return s.grantRepo.ListByRoot(ctx, item.RootID)
}

// Share grants a user view or author access to the tree rooted at the
// item's root. Only the root's owner (or an administrator) may share,
// and grants always attach to the root regardless of which descendant
// was named.
func (s *ItemService) Share(ctx context.Context, user models.User, id, granteeID, access string) error {
	if !models.ValidAccess(access) {
		return &domain.ValidationError{
			Summary: fmt.Sprintf("unknown access level %q; use %q or %q", access, models.AccessView, models.AccessAuthor),
		}
	}
	if granteeID == "" {
		return &domain.ValidationError{Summary: "a user to share with is required"}
	}

	root, err := s.loadRootForSharing(ctx, user, id)
	if err != nil {
		return err
	}

	if granteeID == root.OwnerID {
		return &domain.ValidationError{
			Summary: "the owner already has full access",
			Detail:  "share was offered for the item's own owner; the client should filter this",
		}
	}

	if !s.tryLock(root.ID) {
		return &domain.LockError{
			Message: fmt.Sprintf("%q is in use by another operation; try again shortly", root.Name),
			ItemID:  root.ID,
		}
	}
	defer s.unlock(root.ID)

	grant := &models.Grant{
		RootID:    root.ID,
		UserID:    granteeID,
		Access:    access,
		CreatedAt: time.Now(),
	}
	if err := s.grantRepo.Set(ctx, grant); err != nil {
		return err
	}

	s.logActivity(user, "share", "root_id", root.ID, "grantee", granteeID, "access", access)
	return nil
}

// Unshare removes a user's grant from the item's root.
func (s *ItemService) Unshare(ctx context.Context, user models.User, id, granteeID string) error {
	if granteeID == "" {
		return &domain.ValidationError{Summary: "a user to unshare is required"}
	}

	root, err := s.loadRootForSharing(ctx, user, id)
	if err != nil {
		return err
	}

	if !s.tryLock(root.ID) {
		return &domain.LockError{
			Message: fmt.Sprintf("%q is in use by another operation; try again shortly", root.Name),
			ItemID:  root.ID,
		}
	}
	defer s.unlock(root.ID)

	if err := s.grantRepo.Remove(ctx, root.ID, granteeID); err != nil {
		return err
	}

	s.logActivity(user, "unshare", "root_id", root.ID, "grantee", granteeID)
	return nil
}

// ChangeOwner transfers ownership of an item and its whole subtree.
// Only the current owner or an administrator may do this.
func (s *ItemService) ChangeOwner(ctx context.Context, user models.User, id, newOwnerID string) (*models.Item, error) {
	if newOwnerID == "" {
		return nil, &domain.ValidationError{Summary: "a new owner is required"}
	}

	item, err := s.access.Load(ctx, user, id, OpChown)
	if err != nil {
		return nil, err
	}

	if !s.tryLock(item.ID) {
		return nil, &domain.LockError{
			Message: fmt.Sprintf("%q is in use by another operation; try again shortly", item.Name),
			ItemID:  item.ID,
		}
	}
	defer s.unlock(item.ID)

	if err := s.chownSubtree(ctx, item, newOwnerID); err != nil {
		return nil, err
	}

	s.logActivity(user, "chown", "item_id", item.ID, "new_owner", newOwnerID)
	return item, nil
}

func (s *ItemService) chownSubtree(ctx context.Context, item *models.Item, newOwnerID string) error {
	item.OwnerID = newOwnerID
	item.UpdatedAt = time.Now()
	if err := s.itemRepo.Update(ctx, item); err != nil {
		return err
	}

	if !item.IsFolder() {
		return nil
	}

	children, err := s.itemRepo.ListChildren(ctx, item.ID)
	if err != nil {
		return err
	}
	for i := range children {
		if err := s.chownSubtree(ctx, &children[i], newOwnerID); err != nil {
			return err
		}
	}
	return nil
}

// loadRootForSharing resolves an item to its root and checks the caller
// may manage sharing on it.
func (s *ItemService) loadRootForSharing(ctx context.Context, user models.User, id string) (*models.Item, error) {
	item, err := s.access.Load(ctx, user, id, OpView)
	if err != nil {
		return nil, err
	}

	root := item
	if !item.IsRoot() {
		root, err = s.itemRepo.GetByID(ctx, item.RootID)
		if err != nil {
			return nil, err
		}
	}

	if root.OwnerID != user.ID && !user.Admin {
		return nil, &domain.ForbiddenError{
			Message: fmt.Sprintf("only the owner of %q may change its sharing", root.Name),
		}
	}

	return root, nil
}
