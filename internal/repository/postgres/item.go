package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/domain/repositories"
)

const itemColumns = `id, owner_id, parent_id, root_id, name, description, kind, mime_type, size, file_id, hidden, disabled, created_at, updated_at`

// PostgresItemRepository implements the ItemRepository interface.
type PostgresItemRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewItemRepository creates a new item repository.
func NewItemRepository(config *RepositoryConfig) repositories.ItemRepository {
	return &PostgresItemRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create inserts a new item.
func (r *PostgresItemRepository) Create(ctx context.Context, item *models.Item) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, parent_id, root_id, name, description, kind, mime_type, size, file_id, hidden, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, r.tables.Items)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		item.ID,
		item.OwnerID,
		item.ParentID,
		item.RootID,
		item.Name,
		item.Description,
		item.Kind,
		item.MimeType,
		item.Size,
		item.FileID,
		item.Hidden,
		item.Disabled,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("an item named %q already exists in this location", item.Name),
				ResourceType: "item",
				ResourceID:   item.ID,
			}
		}
		return fmt.Errorf("create item: %w", err)
	}

	return nil
}

// GetByID retrieves an item by ID, hidden or not.
func (r *PostgresItemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1
	`, itemColumns, r.tables.Items)

	executor := GetExecutor(ctx, r.pool)
	item, err := scanItem(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}

	return item, nil
}

// Update saves the mutable columns of an item.
func (r *PostgresItemRepository) Update(ctx context.Context, item *models.Item) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET owner_id = $2, parent_id = $3, root_id = $4, name = $5, description = $6,
		    mime_type = $7, size = $8, file_id = $9, hidden = $10, disabled = $11, updated_at = $12
		WHERE id = $1
	`, r.tables.Items)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		item.ID,
		item.OwnerID,
		item.ParentID,
		item.RootID,
		item.Name,
		item.Description,
		item.MimeType,
		item.Size,
		item.FileID,
		item.Hidden,
		item.Disabled,
		item.UpdatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("an item named %q already exists in this location", item.Name),
				ResourceType: "item",
				ResourceID:   item.ID,
			}
		}
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s: %w", item.ID, domain.ErrNotFound)
	}

	return nil
}

// Delete removes the row. Missing rows are not an error so queue-driven
// retries stay idempotent.
func (r *PostgresItemRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Items)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	return nil
}

// ListChildren lists the non-hidden immediate children of a folder.
func (r *PostgresItemRepository) ListChildren(ctx context.Context, parentID string) ([]models.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE parent_id = $1 AND NOT hidden
		ORDER BY name
	`, itemColumns, r.tables.Items)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ListRoots lists the non-hidden root items owned by ownerID.
func (r *PostgresItemRepository) ListRoots(ctx context.Context, ownerID string) ([]models.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE parent_id IS NULL AND owner_id = $1 AND NOT hidden
		ORDER BY name
	`, itemColumns, r.tables.Items)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ListSharedRoots lists non-hidden roots carrying a grant for userID.
func (r *PostgresItemRepository) ListSharedRoots(ctx context.Context, userID string) ([]models.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s i
		WHERE i.parent_id IS NULL AND NOT i.hidden
		  AND EXISTS (SELECT 1 FROM %s g WHERE g.root_id = i.id AND g.user_id = $1)
		ORDER BY i.name
	`, prefixColumns("i", itemColumns), r.tables.Items, r.tables.Grants)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared roots: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ChildByName finds a non-hidden child by exact name. A nil parentID
// searches ownerID's root items.
func (r *PostgresItemRepository) ChildByName(ctx context.Context, parentID *string, ownerID, name string) (*models.Item, error) {
	executor := GetExecutor(ctx, r.pool)

	var row pgx.Row
	if parentID == nil {
		query := fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE parent_id IS NULL AND owner_id = $1 AND name = $2 AND NOT hidden
		`, itemColumns, r.tables.Items)
		row = executor.QueryRow(ctx, query, ownerID, name)
	} else {
		query := fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE parent_id = $1 AND name = $2 AND NOT hidden
		`, itemColumns, r.tables.Items)
		row = executor.QueryRow(ctx, query, *parentID, name)
	}

	item, err := scanItem(row)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("item %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("child by name: %w", err)
	}

	return item, nil
}

// SetHidden flips the hidden flag without touching other columns.
func (r *PostgresItemRepository) SetHidden(ctx context.Context, id string, hidden bool) error {
	query := fmt.Sprintf(`UPDATE %s SET hidden = $2, updated_at = now() WHERE id = $1`, r.tables.Items)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, hidden)
	if err != nil {
		return fmt.Errorf("set hidden: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// SetRootForSubtree repoints root_id for every descendant of itemID.
func (r *PostgresItemRepository) SetRootForSubtree(ctx context.Context, itemID, newRootID string) error {
	query := fmt.Sprintf(`
		WITH RECURSIVE subtree AS (
			SELECT id FROM %s WHERE parent_id = $1
			UNION ALL
			SELECT i.id FROM %s i JOIN subtree s ON i.parent_id = s.id
		)
		UPDATE %s SET root_id = $2 WHERE id IN (SELECT id FROM subtree)
	`, r.tables.Items, r.tables.Items, r.tables.Items)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, itemID, newRootID); err != nil {
		return fmt.Errorf("set root for subtree: %w", err)
	}

	return nil
}

// AdjustSize adds delta to an item's size.
func (r *PostgresItemRepository) AdjustSize(ctx context.Context, id string, delta int64) error {
	query := fmt.Sprintf(`UPDATE %s SET size = size + $2 WHERE id = $1`, r.tables.Items)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, id, delta); err != nil {
		return fmt.Errorf("adjust size: %w", err)
	}

	return nil
}

// Search finds non-hidden items owned by ownerID whose name matches
// query; with filenames set, wrapped filenames match too.
func (r *PostgresItemRepository) Search(ctx context.Context, ownerID, query string, filenames bool) ([]models.Item, error) {
	pattern := "%" + query + "%"
	executor := GetExecutor(ctx, r.pool)

	var (
		rows pgx.Rows
		err  error
	)
	if filenames {
		sql := fmt.Sprintf(`
			SELECT %s
			FROM %s i
			LEFT JOIN %s f ON f.id = i.file_id
			WHERE i.owner_id = $1 AND NOT i.hidden
			  AND (i.name ILIKE $2 OR f.filename ILIKE $2)
			ORDER BY i.name
		`, prefixColumns("i", itemColumns), r.tables.Items, r.tables.Files)
		rows, err = executor.Query(ctx, sql, ownerID, pattern)
	} else {
		sql := fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE owner_id = $1 AND NOT hidden AND name ILIKE $2
			ORDER BY name
		`, itemColumns, r.tables.Items)
		rows, err = executor.Query(ctx, sql, ownerID, pattern)
	}
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// Usage aggregates per-user folder, file, and byte counts.
func (r *PostgresItemRepository) Usage(ctx context.Context, ownerID string) (*repositories.Usage, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE parent_id IS NULL),
			COUNT(*) FILTER (WHERE kind = 'folder'),
			COUNT(*) FILTER (WHERE kind <> 'folder'),
			COALESCE(SUM(size) FILTER (WHERE kind <> 'folder'), 0)
		FROM %s
		WHERE owner_id = $1 AND NOT hidden
	`, r.tables.Items)

	usage := &repositories.Usage{UserID: ownerID}
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, ownerID).Scan(
		&usage.Roots,
		&usage.Folders,
		&usage.Files,
		&usage.Bytes,
	)
	if err != nil {
		return nil, fmt.Errorf("usage: %w", err)
	}

	return usage, nil
}

func scanItem(row pgx.Row) (*models.Item, error) {
	var item models.Item
	err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.ParentID,
		&item.RootID,
		&item.Name,
		&item.Description,
		&item.Kind,
		&item.MimeType,
		&item.Size,
		&item.FileID,
		&item.Hidden,
		&item.Disabled,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func collectItems(rows pgx.Rows) ([]models.Item, error) {
	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return items, nil
}

// prefixColumns qualifies a comma-separated column list with a table
// alias for joined queries.
func prefixColumns(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
