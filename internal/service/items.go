package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"foldershare/internal/config"
	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/domain/repositories"
	"foldershare/internal/lock"
	"foldershare/internal/storage"
)

// ItemService implements the tree operations: creation, rename, move,
// copy, delete, sharing, upload, download, and archiving. The methods
// are spread over several files by concern; they all share this struct.
type ItemService struct {
	itemRepo  repositories.ItemRepository
	fileRepo  repositories.FileRepository
	grantRepo repositories.GrantRepository
	taskRepo  repositories.TaskRepository
	txManager repositories.TransactionManager
	access    *AccessService
	locks     *lock.Manager
	store     storage.Store
	settings  *config.SettingsStore
	logger    *slog.Logger
}

// NewItemService creates a new item service.
func NewItemService(
	itemRepo repositories.ItemRepository,
	fileRepo repositories.FileRepository,
	grantRepo repositories.GrantRepository,
	taskRepo repositories.TaskRepository,
	txManager repositories.TransactionManager,
	access *AccessService,
	locks *lock.Manager,
	store storage.Store,
	settings *config.SettingsStore,
	logger *slog.Logger,
) *ItemService {
	return &ItemService{
		itemRepo:  itemRepo,
		fileRepo:  fileRepo,
		grantRepo: grantRepo,
		taskRepo:  taskRepo,
		txManager: txManager,
		access:    access,
		locks:     locks,
		store:     store,
		settings:  settings,
		logger:    logger,
	}
}

var itemNameRule = validation.Match(regexp.MustCompile(`^[^/]+$`)).
	Error("item name cannot contain slashes")

// validateName applies the shared item-name rules.
func validateName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, config.MaxItemNameLength),
		itemNameRule,
		validation.NotIn(".", "..").Error("item name is reserved"),
	)
	if err != nil {
		return &domain.ValidationError{Summary: fmt.Sprintf("invalid name: %v", err)}
	}
	return nil
}

// tryLock acquires the advisory lock on id unless process locks are
// switched off in the settings.
func (s *ItemService) tryLock(id string) bool {
	if !s.settings.Current().ProcessLocks {
		return true
	}
	return s.locks.TryLock(id)
}

// unlock releases an advisory lock; safe on unheld IDs.
func (s *ItemService) unlock(id string) {
	s.locks.Unlock(id)
}

// logActivity records an executed command when activity logging is on.
func (s *ItemService) logActivity(user models.User, command string, args ...any) {
	if !s.settings.Current().ActivityLogging {
		return
	}
	fields := append([]any{"command", command, "user_id", user.ID}, args...)
	s.logger.Info("command executed", fields...)
}

// CreateRootFolder creates a top-level folder owned by user.
func (s *ItemService) CreateRootFolder(ctx context.Context, user models.User, name string) (*models.Item, error) {
	if user.Anonymous() {
		return nil, &domain.UnauthorizedError{Message: "authentication required"}
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	if existing, err := s.itemRepo.ChildByName(ctx, nil, user.ID, name); err == nil {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("a top-level item named %q already exists", name),
			ResourceType: "item",
			ResourceID:   existing.ID,
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	item := &models.Item{
		ID:        uuid.NewString(),
		OwnerID:   user.ID,
		Name:      name,
		Kind:      models.KindFolder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	item.RootID = item.ID

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, err
	}

	s.logActivity(user, "new-rootfolder", "item_id", item.ID, "name", name)
	return item, nil
}

// CreateFolder creates a folder inside parentID.
func (s *ItemService) CreateFolder(ctx context.Context, user models.User, parentID, name string) (*models.Item, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	parent, err := s.access.Load(ctx, user, parentID, OpAuthor)
	if err != nil {
		return nil, err
	}
	if !parent.IsFolder() {
		return nil, &domain.ValidationError{
			Summary: fmt.Sprintf("%q is not a folder", parent.Name),
			Detail:  "new-folder was invoked with a non-folder parent; the client should not offer it here",
		}
	}

	if existing, err := s.itemRepo.ChildByName(ctx, &parent.ID, parent.OwnerID, name); err == nil {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("an item named %q already exists in %q", name, parent.Name),
			ResourceType: "item",
			ResourceID:   existing.ID,
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	item := &models.Item{
		ID:        uuid.NewString(),
		OwnerID:   parent.OwnerID,
		ParentID:  &parent.ID,
		RootID:    parent.RootID,
		Name:      name,
		Kind:      models.KindFolder,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, err
	}

	s.logActivity(user, "new-folder", "item_id", item.ID, "parent_id", parent.ID, "name", name)
	return item, nil
}

// Get returns a single item with its display path.
func (s *ItemService) Get(ctx context.Context, user models.User, id string) (*models.Item, error) {
	item, err := s.access.Load(ctx, user, id, OpView)
	if err != nil {
		return nil, err
	}

	path, err := s.Path(ctx, item)
	if err != nil {
		s.logger.Warn("failed to compute path", "item_id", item.ID, "error", err)
	} else {
		item.Path = path
	}

	return item, nil
}

// Rename changes an item's name under its process lock.
func (s *ItemService) Rename(ctx context.Context, user models.User, id, newName string) (*models.Item, error) {
	if err := validateName(newName); err != nil {
		return nil, err
	}

	item, err := s.access.Load(ctx, user, id, OpAuthor)
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

	if existing, err := s.itemRepo.ChildByName(ctx, item.ParentID, item.OwnerID, newName); err == nil && existing.ID != item.ID {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("an item named %q already exists in this location", newName),
			ResourceType: "item",
			ResourceID:   existing.ID,
		}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	item.Name = newName
	item.UpdatedAt = time.Now()
	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, err
	}

	s.logActivity(user, "rename", "item_id", item.ID, "name", newName)
	return item, nil
}

// Describe replaces an item's description.
func (s *ItemService) Describe(ctx context.Context, user models.User, id, description string) (*models.Item, error) {
	item, err := s.access.Load(ctx, user, id, OpAuthor)
	if err != nil {
		return nil, err
	}

	item.Description = description
	item.UpdatedAt = time.Now()
	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, err
	}

	s.logActivity(user, "describe", "item_id", item.ID)
	return item, nil
}

// ListChildren lists the visible children of a folder.
func (s *ItemService) ListChildren(ctx context.Context, user models.User, id string) ([]models.Item, error) {
	item, err := s.access.Load(ctx, user, id, OpView)
	if err != nil {
		return nil, err
	}
	if !item.IsFolder() {
		return nil, &domain.ValidationError{Summary: fmt.Sprintf("%q is not a folder", item.Name)}
	}

	return s.itemRepo.ListChildren(ctx, item.ID)
}

// ListRoots lists the user's own top-level items.
func (s *ItemService) ListRoots(ctx context.Context, user models.User) ([]models.Item, error) {
	if user.Anonymous() {
		return nil, &domain.UnauthorizedError{Message: "authentication required"}
	}
	return s.itemRepo.ListRoots(ctx, user.ID)
}

// ListSharedRoots lists roots other users have shared with this user.
func (s *ItemService) ListSharedRoots(ctx context.Context, user models.User) ([]models.Item, error) {
	principal := user.ID
	if user.Anonymous() {
		principal = models.AnonymousUserID
	}
	return s.itemRepo.ListSharedRoots(ctx, principal)
}

// Ancestors returns the chain from the root down to (and including) the
// item itself.
func (s *ItemService) Ancestors(ctx context.Context, user models.User, id string) ([]models.Item, error) {
	item, err := s.access.Load(ctx, user, id, OpView)
	if err != nil {
		return nil, err
	}

	var chain []models.Item
	current := item
	for {
		chain = append([]models.Item{*current}, chain...)
		if current.ParentID == nil {
			return chain, nil
		}
		current, err = s.itemRepo.GetByID(ctx, *current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("walk ancestors: %w", err)
		}
		if current.Hidden {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("item %s not found", id)}
		}
	}
}

// Descendants returns the full visible subtree under an item,
// depth-first, the item itself excluded.
func (s *ItemService) Descendants(ctx context.Context, user models.User, id string) ([]models.Item, error) {
	item, err := s.access.Load(ctx, user, id, OpView)
	if err != nil {
		return nil, err
	}
	if !item.IsFolder() {
		return nil, nil
	}

	var out []models.Item
	var walk func(parentID string) error
	walk = func(parentID string) error {
		children, err := s.itemRepo.ListChildren(ctx, parentID)
		if err != nil {
			return err
		}
		for _, child := range children {
			out = append(out, child)
			if child.IsFolder() {
				if err := walk(child.ID); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(item.ID); err != nil {
		return nil, err
	}
	return out, nil
}

// Path computes the display path of an item by walking to its root.
func (s *ItemService) Path(ctx context.Context, item *models.Item) (string, error) {
	segments := []string{item.Name}
	current := item
	for current.ParentID != nil {
		parent, err := s.itemRepo.GetByID(ctx, *current.ParentID)
		if err != nil {
			return "", fmt.Errorf("walk path: %w", err)
		}
		segments = append([]string{parent.Name}, segments...)
		current = parent
	}
	return "/" + strings.Join(segments, "/"), nil
}

// ResolvePath finds an item by display path ("/top/sub/name") among the
// user's own trees. The leading slash is optional.
func (s *ItemService) ResolvePath(ctx context.Context, user models.User, path string) (*models.Item, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, &domain.ValidationError{Summary: "path must name at least a top-level item"}
	}

	segments := strings.Split(trimmed, "/")
	item, err := s.itemRepo.ChildByName(ctx, nil, user.ID, segments[0])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("no item at path %q", path)}
		}
		return nil, err
	}

	for _, segment := range segments[1:] {
		item, err = s.itemRepo.ChildByName(ctx, &item.ID, item.OwnerID, segment)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, &domain.NotFoundError{Message: fmt.Sprintf("no item at path %q", path)}
			}
			return nil, err
		}
	}

	return s.access.Load(ctx, user, item.ID, OpView)
}

// Search scopes. NameBody extends matching to stored filenames.
const (
	SearchScopeName     = "name"
	SearchScopeNameBody = "name-body"
	SearchScopeAll      = "all"
)

// Search finds the user's items matching query under the given scope.
func (s *ItemService) Search(ctx context.Context, user models.User, query, scope string) ([]models.Item, error) {
	if user.Anonymous() {
		return nil, &domain.UnauthorizedError{Message: "authentication required"}
	}
	if query == "" {
		return nil, &domain.ValidationError{Summary: "search query must not be empty"}
	}

	switch scope {
	case "", SearchScopeName:
		return s.itemRepo.Search(ctx, user.ID, query, false)
	case SearchScopeNameBody, SearchScopeAll:
		return s.itemRepo.Search(ctx, user.ID, query, true)
	default:
		return nil, &domain.ValidationError{
			Summary: fmt.Sprintf("unknown search scope %q", scope),
		}
	}
}

// Usage reports what a user owns. Admins may ask about any user.
func (s *ItemService) Usage(ctx context.Context, user models.User, aboutUserID string) (*repositories.Usage, error) {
	if user.Anonymous() {
		return nil, &domain.UnauthorizedError{Message: "authentication required"}
	}
	if aboutUserID == "" {
		aboutUserID = user.ID
	}
	if aboutUserID != user.ID && !user.Admin {
		return nil, &domain.ForbiddenError{Message: "only administrators may view other users' usage"}
	}

	return s.itemRepo.Usage(ctx, aboutUserID)
}

// adjustAncestorSizes adds delta to every folder from parentID up to the
// root, keeping the folder-size invariant intact.
func (s *ItemService) adjustAncestorSizes(ctx context.Context, parentID *string, delta int64) error {
	if delta == 0 {
		return nil
	}

	for parentID != nil {
		if err := s.itemRepo.AdjustSize(ctx, *parentID, delta); err != nil {
			return err
		}
		parent, err := s.itemRepo.GetByID(ctx, *parentID)
		if err != nil {
			return err
		}
		parentID = parent.ParentID
	}
	return nil
}
