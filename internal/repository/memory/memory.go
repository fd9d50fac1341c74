// Package memory provides in-memory repository implementations used by
// service tests. Semantics mirror the postgres implementations: listing
// methods skip hidden rows, sibling names are unique, and deletes of
// missing rows are not errors.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/domain/repositories"
)

// ItemRepository is an in-memory repositories.ItemRepository.
type ItemRepository struct {
	mu    sync.RWMutex
	items map[string]models.Item

	// grants is consulted by ListSharedRoots; wire the same
	// GrantRepository in with SetGrants.
	grants *GrantRepository

	// files is consulted by Search with filenames enabled.
	files *FileRepository
}

func NewItemRepository() *ItemRepository {
	return &ItemRepository{items: make(map[string]models.Item)}
}

// SetGrants links a grant repository for shared-root listing.
func (r *ItemRepository) SetGrants(grants *GrantRepository) { r.grants = grants }

// SetFiles links a file repository for filename search.
func (r *ItemRepository) SetFiles(files *FileRepository) { r.files = files }

func (r *ItemRepository) Create(_ context.Context, item *models.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[item.ID]; ok {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("item %s already exists", item.ID),
			ResourceType: "item",
			ResourceID:   item.ID,
		}
	}
	for _, existing := range r.items {
		if existing.Name == item.Name && sameParentID(existing.ParentID, item.ParentID) &&
			(item.ParentID != nil || existing.OwnerID == item.OwnerID) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("an item named %q already exists in this location", item.Name),
				ResourceType: "item",
				ResourceID:   existing.ID,
			}
		}
	}

	r.items[item.ID] = *item
	return nil
}

func (r *ItemRepository) GetByID(_ context.Context, id string) (*models.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return &item, nil
}

func (r *ItemRepository) Update(_ context.Context, item *models.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[item.ID]; !ok {
		return fmt.Errorf("item %s: %w", item.ID, domain.ErrNotFound)
	}
	for _, existing := range r.items {
		if existing.ID != item.ID && existing.Name == item.Name &&
			sameParentID(existing.ParentID, item.ParentID) &&
			(item.ParentID != nil || existing.OwnerID == item.OwnerID) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("an item named %q already exists in this location", item.Name),
				ResourceType: "item",
				ResourceID:   existing.ID,
			}
		}
	}

	r.items[item.ID] = *item
	return nil
}

func (r *ItemRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *ItemRepository) ListChildren(_ context.Context, parentID string) ([]models.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var children []models.Item
	for _, item := range r.items {
		if item.ParentID != nil && *item.ParentID == parentID && !item.Hidden {
			children = append(children, item)
		}
	}
	sortByName(children)
	return children, nil
}

func (r *ItemRepository) ListRoots(_ context.Context, ownerID string) ([]models.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var roots []models.Item
	for _, item := range r.items {
		if item.ParentID == nil && item.OwnerID == ownerID && !item.Hidden {
			roots = append(roots, item)
		}
	}
	sortByName(roots)
	return roots, nil
}

func (r *ItemRepository) ListSharedRoots(ctx context.Context, userID string) ([]models.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var roots []models.Item
	for _, item := range r.items {
		if item.ParentID != nil || item.Hidden || r.grants == nil {
			continue
		}
		grants, err := r.grants.ListByRoot(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		for _, grant := range grants {
			if grant.UserID == userID {
				roots = append(roots, item)
				break
			}
		}
	}
	sortByName(roots)
	return roots, nil
}

func (r *ItemRepository) ChildByName(_ context.Context, parentID *string, ownerID, name string) (*models.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, item := range r.items {
		if item.Hidden || item.Name != name || !sameParentID(item.ParentID, parentID) {
			continue
		}
		if parentID == nil && item.OwnerID != ownerID {
			continue
		}
		found := item
		return &found, nil
	}
	return nil, fmt.Errorf("item %q: %w", name, domain.ErrNotFound)
}

func (r *ItemRepository) SetHidden(_ context.Context, id string, hidden bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	item.Hidden = hidden
	r.items[id] = item
	return nil
}

func (r *ItemRepository) SetRootForSubtree(_ context.Context, itemID, newRootID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Walk parent chains instead of recursing; the map is flat.
	for id, item := range r.items {
		if r.isDescendantLocked(id, itemID) {
			item.RootID = newRootID
			r.items[id] = item
		}
	}
	return nil
}

func (r *ItemRepository) isDescendantLocked(id, ancestorID string) bool {
	item, ok := r.items[id]
	for ok {
		if item.ParentID == nil {
			return false
		}
		if *item.ParentID == ancestorID {
			return true
		}
		item, ok = r.items[*item.ParentID]
	}
	return false
}

func (r *ItemRepository) AdjustSize(_ context.Context, id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return nil
	}
	item.Size += delta
	r.items[id] = item
	return nil
}

func (r *ItemRepository) Search(ctx context.Context, ownerID, query string, filenames bool) ([]models.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(query)
	var matches []models.Item
	for _, item := range r.items {
		if item.OwnerID != ownerID || item.Hidden {
			continue
		}
		if strings.Contains(strings.ToLower(item.Name), needle) {
			matches = append(matches, item)
			continue
		}
		if filenames && item.FileID != nil && r.files != nil {
			file, err := r.files.GetByID(ctx, *item.FileID)
			if err == nil && strings.Contains(strings.ToLower(file.Filename), needle) {
				matches = append(matches, item)
			}
		}
	}
	sortByName(matches)
	return matches, nil
}

func (r *ItemRepository) Usage(_ context.Context, ownerID string) (*repositories.Usage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	usage := &repositories.Usage{UserID: ownerID}
	for _, item := range r.items {
		if item.OwnerID != ownerID || item.Hidden {
			continue
		}
		if item.ParentID == nil {
			usage.Roots++
		}
		if item.IsFolder() {
			usage.Folders++
		} else {
			usage.Files++
			usage.Bytes += item.Size
		}
	}
	return usage, nil
}

// FileRepository is an in-memory repositories.FileRepository.
type FileRepository struct {
	mu    sync.RWMutex
	files map[string]models.StoredFile
}

func NewFileRepository() *FileRepository {
	return &FileRepository{files: make(map[string]models.StoredFile)}
}

func (r *FileRepository) Create(_ context.Context, file *models.StoredFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[file.ID]; ok {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("file %s already exists", file.ID),
			ResourceType: "item",
			ResourceID:   file.ID,
		}
	}
	r.files[file.ID] = *file
	return nil
}

func (r *FileRepository) GetByID(_ context.Context, id string) (*models.StoredFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	file, ok := r.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	return &file, nil
}

func (r *FileRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
	return nil
}

// GrantRepository is an in-memory repositories.GrantRepository.
type GrantRepository struct {
	mu     sync.RWMutex
	grants map[string]map[string]models.Grant // rootID -> userID -> grant
}

func NewGrantRepository() *GrantRepository {
	return &GrantRepository{grants: make(map[string]map[string]models.Grant)}
}

func (r *GrantRepository) ListByRoot(_ context.Context, rootID string) ([]models.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Grant
	for _, grant := range r.grants[rootID] {
		out = append(out, grant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *GrantRepository) Set(_ context.Context, grant *models.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.grants[grant.RootID] == nil {
		r.grants[grant.RootID] = make(map[string]models.Grant)
	}
	r.grants[grant.RootID][grant.UserID] = *grant
	return nil
}

func (r *GrantRepository) Remove(_ context.Context, rootID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants[rootID], userID)
	return nil
}

func (r *GrantRepository) ClearRoot(_ context.Context, rootID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants, rootID)
	return nil
}

// TaskRepository is an in-memory repositories.TaskRepository. Claim
// order follows enqueue order.
type TaskRepository struct {
	mu    sync.Mutex
	tasks []models.Task
}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{}
}

func (r *TaskRepository) Enqueue(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, *task)
	return nil
}

func (r *TaskRepository) Claim(_ context.Context) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.tasks) == 0 {
		return nil, domain.ErrNotFound
	}
	task := r.tasks[0]
	r.tasks = r.tasks[1:]
	return &task, nil
}

func (r *TaskRepository) Requeue(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	requeued := *task
	requeued.Attempts++
	r.tasks = append(r.tasks, requeued)
	return nil
}

func (r *TaskRepository) CompleteByItems(_ context.Context, operation string, itemIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		allowed[id] = true
	}

	kept := r.tasks[:0]
	for _, task := range r.tasks {
		if task.Operation == operation && subsetOf(task.ItemIDs, allowed) {
			continue
		}
		kept = append(kept, task)
	}
	r.tasks = kept
	return nil
}

// Pending returns the number of queued tasks, for tests.
func (r *TaskRepository) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// TransactionManager runs the function directly; the in-memory stores
// have no transactions to speak of.
type TransactionManager struct{}

func NewTransactionManager() *TransactionManager { return &TransactionManager{} }

func (TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

func sameParentID(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sortByName(items []models.Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}

func subsetOf(ids []string, allowed map[string]bool) bool {
	for _, id := range ids {
		if !allowed[id] {
			return false
		}
	}
	return true
}
