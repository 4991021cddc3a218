package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/formwatch/formwatch/internal/domain"
)

// PostgresChecklistRepository persists onboarding checklists. Item updates
// and the aggregate-status recomputation run inside one transaction with
// the checklist row locked, so the stored aggregate can never go stale
// against its items.
type PostgresChecklistRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresChecklistRepository creates the repository
func NewPostgresChecklistRepository(db *sql.DB, logger *slog.Logger) *PostgresChecklistRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresChecklistRepository{db: db, logger: logger}
}

// CreateWithItems inserts the checklist and all of its items in a single
// transaction. A checklist is never visible with zero items.
func (r *PostgresChecklistRepository) CreateWithItems(ctx context.Context, checklist *domain.Checklist) error {
	if len(checklist.Items) == 0 {
		return fmt.Errorf("checklist must have at least one item")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checklist create: %w", err)
	}
	defer tx.Rollback()

	if checklist.ID == "" {
		checklist.ID = uuid.NewString()
	}
	if checklist.Status == "" {
		checklist.Status = domain.ChecklistPending
	}
	if checklist.CreatedAt.IsZero() {
		checklist.CreatedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checklists (id, owner_kind, owner_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		checklist.ID, checklist.OwnerKind, checklist.OwnerID,
		checklist.Status, checklist.CreatedAt); err != nil {
		return fmt.Errorf("insert checklist: %w", err)
	}

	for i := range checklist.Items {
		item := &checklist.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.ChecklistID = checklist.ID
		if item.Status == "" {
			item.Status = domain.ItemPending
		}
		item.Position = i
		item.UpdatedAt = checklist.CreatedAt
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO checklist_items
				(id, checklist_id, form_id, jurisdiction, agency, required, status, file_id, position, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			item.ID, item.ChecklistID, item.Key.FormID, item.Key.Jurisdiction,
			item.Key.Agency, item.Required, item.Status, item.FileID,
			item.Position, item.UpdatedAt); err != nil {
			return fmt.Errorf("insert checklist item %s: %w", item.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checklist create: %w", err)
	}
	return nil
}

// GetByID loads a checklist with its items in position order
func (r *PostgresChecklistRepository) GetByID(ctx context.Context, id string) (*domain.Checklist, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetByOwner loads the checklist for a company or employee
func (r *PostgresChecklistRepository) GetByOwner(ctx context.Context, kind domain.ChecklistOwnerKind, ownerID string) (*domain.Checklist, error) {
	return r.get(ctx, `WHERE owner_kind = $1 AND owner_id = $2`, string(kind), ownerID)
}

func (r *PostgresChecklistRepository) get(ctx context.Context, where string, args ...any) (*domain.Checklist, error) {
	var c domain.Checklist
	var completed sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_kind, owner_id, status, created_at, completed_at FROM checklists `+where,
		args...).Scan(&c.ID, &c.OwnerKind, &c.OwnerID, &c.Status, &c.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checklist: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get checklist: %w", err)
	}
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}

	items, err := r.loadItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return &c, nil
}

func (r *PostgresChecklistRepository) loadItems(ctx context.Context, checklistID string) ([]domain.ChecklistItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, checklist_id, form_id, jurisdiction, agency, required, status, file_id, position, updated_at
		FROM checklist_items WHERE checklist_id = $1 ORDER BY position`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("load checklist items: %w", err)
	}
	defer rows.Close()

	var items []domain.ChecklistItem
	for rows.Next() {
		var it domain.ChecklistItem
		if err := rows.Scan(&it.ID, &it.ChecklistID, &it.Key.FormID, &it.Key.Jurisdiction,
			&it.Key.Agency, &it.Required, &it.Status, &it.FileID, &it.Position, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateItem mutates one item and recomputes the aggregate status in the
// same transaction. Returns the checklist after recomputation.
func (r *PostgresChecklistRepository) UpdateItem(ctx context.Context, itemID string, status domain.ItemStatus, fileID string) (*domain.Checklist, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin item update: %w", err)
	}
	defer tx.Rollback()

	var checklistID string
	err = tx.QueryRowContext(ctx,
		`SELECT checklist_id FROM checklist_items WHERE id = $1`, itemID).Scan(&checklistID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checklist item %s: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find checklist item: %w", err)
	}

	// Lock the parent row so concurrent item updates on the same checklist
	// serialize their recomputation.
	if _, err := tx.ExecContext(ctx,
		`SELECT id FROM checklists WHERE id = $1 FOR UPDATE`, checklistID); err != nil {
		return nil, fmt.Errorf("lock checklist %s: %w", checklistID, err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE checklist_items SET status = $2, file_id = $3, updated_at = $4 WHERE id = $1`,
		itemID, status, fileID, now); err != nil {
		return nil, fmt.Errorf("update checklist item: %w", err)
	}

	// Recompute the aggregate from all items under the lock
	rows, err := tx.QueryContext(ctx,
		`SELECT required, status FROM checklist_items WHERE checklist_id = $1`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("read items for recompute: %w", err)
	}
	shadow := domain.Checklist{}
	for rows.Next() {
		var it domain.ChecklistItem
		if err := rows.Scan(&it.Required, &it.Status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan item for recompute: %w", err)
		}
		shadow.Items = append(shadow.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	shadow.Recompute(now)

	var completed any
	if shadow.CompletedAt != nil {
		completed = *shadow.CompletedAt
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE checklists SET status = $2, completed_at = $3 WHERE id = $1`,
		checklistID, shadow.Status, completed); err != nil {
		return nil, fmt.Errorf("update checklist status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit item update: %w", err)
	}

	return r.GetByID(ctx, checklistID)
}
