package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/formwatch/formwatch/internal/detect"
	"github.com/formwatch/formwatch/internal/domain"
)

// upsertRetries bounds lock-contention retries before ErrConflict surfaces
const upsertRetries = 3

// PostgresDocumentRepository is the Document Store. The row for a
// (form_id, jurisdiction, agency) key is locked with SELECT ... FOR UPDATE
// inside the upsert transaction, so concurrent sweep workers racing on the
// same document serialize instead of interleaving change-log appends.
// Locking is per key; sweeps on different documents proceed in parallel.
type PostgresDocumentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresDocumentRepository creates the store
func NewPostgresDocumentRepository(db *sql.DB, logger *slog.Logger) *PostgresDocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDocumentRepository{db: db, logger: logger}
}

// Get returns the stored metadata and current content for a key
func (r *PostgresDocumentRepository) Get(ctx context.Context, key domain.DocumentKey) (*domain.DocumentMetadata, *domain.DocumentContent, error) {
	meta, contentID, err := r.getMetadata(ctx, r.db, key, false)
	if err != nil {
		return nil, nil, err
	}

	changeLog, err := r.getChangeLog(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	meta.ChangeLog = changeLog

	var content *domain.DocumentContent
	if contentID != "" {
		content, err = r.getContent(ctx, contentID)
		if err != nil {
			return nil, nil, err
		}
	}
	return meta, content, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PostgresDocumentRepository) getMetadata(ctx context.Context, q querier, key domain.DocumentKey, forUpdate bool) (*domain.DocumentMetadata, string, error) {
	query := `
		SELECT form_type, title, current_version, document_hash,
		       last_updated, last_checked, effective_date, expiration_date,
		       is_active, priority, content_id
		FROM documents
		WHERE form_id = $1 AND jurisdiction = $2 AND agency = $3`
	if forUpdate {
		query += " FOR UPDATE"
	}

	meta := domain.DocumentMetadata{Key: key}
	var expiration sql.NullTime
	var contentID sql.NullString
	err := q.QueryRowContext(ctx, query, key.FormID, key.Jurisdiction, key.Agency).Scan(
		&meta.FormType, &meta.Title, &meta.CurrentVersion, &meta.DocumentHash,
		&meta.LastUpdated, &meta.LastChecked, &meta.EffectiveDate, &expiration,
		&meta.IsActive, &meta.Priority, &contentID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("document %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("get document %s: %w", key, err)
	}
	if expiration.Valid {
		t := expiration.Time
		meta.ExpirationDate = &t
	}
	return &meta, contentID.String, nil
}

func (r *PostgresDocumentRepository) getChangeLog(ctx context.Context, key domain.DocumentKey) ([]domain.ChangeLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT change_date, change_type, description
		FROM document_changelog
		WHERE form_id = $1 AND jurisdiction = $2 AND agency = $3
		ORDER BY change_date, id`,
		key.FormID, key.Jurisdiction, key.Agency)
	if err != nil {
		return nil, fmt.Errorf("get changelog %s: %w", key, err)
	}
	defer rows.Close()

	var entries []domain.ChangeLogEntry
	for rows.Next() {
		var e domain.ChangeLogEntry
		if err := rows.Scan(&e.Date, &e.ChangeType, &e.Description); err != nil {
			return nil, fmt.Errorf("scan changelog %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresDocumentRepository) getContent(ctx context.Context, contentID string) (*domain.DocumentContent, error) {
	var c domain.DocumentContent
	err := r.db.QueryRowContext(ctx, `
		SELECT id, form_id, jurisdiction, agency, content_type, body, fetched_at
		FROM document_content WHERE id = $1`, contentID).Scan(
		&c.ID, &c.Key.FormID, &c.Key.Jurisdiction, &c.Key.Agency,
		&c.ContentType, &c.Body, &c.FetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content %s: %w", contentID, err)
	}
	return &c, nil
}

// Upsert is the only mutating entry point. A none outcome only bumps
// last_checked; anything else stores new content, repoints the metadata,
// and appends a change-log entry (except new, which creates the row with
// an empty log). The outcome argument is the caller's pre-lock
// classification and is re-validated against the row read under the key
// lock, so a racer that already stored the same fetch collapses to a
// checked bump instead of a duplicate log entry. Bounded retry on lock
// contention, then ErrConflict.
func (r *PostgresDocumentRepository) Upsert(ctx context.Context, meta domain.DocumentMetadata, content *domain.DocumentContent, outcome domain.ChangeType) (*domain.DocumentMetadata, error) {
	var lastErr error
	for attempt := 0; attempt < upsertRetries; attempt++ {
		stored, err := r.upsertOnce(ctx, meta, content, outcome)
		if err == nil {
			return stored, nil
		}
		if !isLockContention(err) {
			return nil, err
		}
		lastErr = err
		r.logger.Warn("document upsert contention, retrying",
			slog.String("key", meta.Key.String()),
			slog.Int("attempt", attempt+1),
		)
	}
	return nil, fmt.Errorf("upsert %s after %d attempts: %w (%v)", meta.Key, upsertRetries, domain.ErrConflict, lastErr)
}

func (r *PostgresDocumentRepository) upsertOnce(ctx context.Context, meta domain.DocumentMetadata, content *domain.DocumentContent, outcome domain.ChangeType) (*domain.DocumentMetadata, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	key := meta.Key
	now := time.Now().UTC()

	locked, _, err := r.getMetadata(ctx, tx, key, true)
	exists := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// The caller classified against a snapshot taken before the lock.
	// The locked row is the truth: a racer may have stored this fetch
	// already (same version collapses to none) or created the row first
	// (a pre-lock new becomes a logged change).
	effective := outcome
	if outcome != domain.ChangeNone {
		if exists {
			effective = detect.Detect(locked, meta)
		} else {
			effective = domain.ChangeNew
		}
	}
	if effective != outcome {
		r.logger.Debug("change outcome re-classified under lock",
			slog.String("key", key.String()),
			slog.String("from", string(outcome)),
			slog.String("to", string(effective)),
		)
	}

	if effective == domain.ChangeNone {
		if exists {
			if _, err := tx.ExecContext(ctx, `
				UPDATE documents SET last_checked = $4
				WHERE form_id = $1 AND jurisdiction = $2 AND agency = $3`,
				key.FormID, key.Jurisdiction, key.Agency, now); err != nil {
				return nil, fmt.Errorf("mark checked %s: %w", key, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit upsert: %w", err)
		}
		return r.reload(ctx, key)
	}

	var contentID sql.NullString
	if content != nil {
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_content (id, form_id, jurisdiction, agency, content_type, body, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, key.FormID, key.Jurisdiction, key.Agency,
			content.ContentType, content.Body, now); err != nil {
			return nil, fmt.Errorf("insert content %s: %w", key, err)
		}
		contentID = sql.NullString{String: id, Valid: true}
	}

	var expiration sql.NullTime
	if meta.ExpirationDate != nil {
		expiration = sql.NullTime{Time: *meta.ExpirationDate, Valid: true}
	}

	if exists {
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET
				form_type = $4, title = $5, current_version = $6, document_hash = $7,
				last_updated = $8, last_checked = $9, effective_date = $10,
				expiration_date = $11, is_active = $12, priority = $13,
				content_id = COALESCE($14, content_id)
			WHERE form_id = $1 AND jurisdiction = $2 AND agency = $3`,
			key.FormID, key.Jurisdiction, key.Agency,
			meta.FormType, meta.Title, meta.CurrentVersion, meta.DocumentHash,
			meta.LastUpdated, now, meta.EffectiveDate, expiration,
			meta.IsActive, meta.Priority, contentID); err != nil {
			return nil, fmt.Errorf("update document %s: %w", key, err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (form_id, jurisdiction, agency, form_type, title,
				current_version, document_hash, last_updated, last_checked,
				effective_date, expiration_date, is_active, priority, content_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			key.FormID, key.Jurisdiction, key.Agency, meta.FormType, meta.Title,
			meta.CurrentVersion, meta.DocumentHash, meta.LastUpdated, now,
			meta.EffectiveDate, expiration, meta.IsActive, meta.Priority, contentID); err != nil {
			return nil, fmt.Errorf("insert document %s: %w", key, err)
		}
	}

	// The first sighting of a document is not a change; the log starts
	// with the first observed difference.
	if exists && effective != domain.ChangeNew {
		description := fmt.Sprintf("version %s (%s change)", meta.CurrentVersion, effective)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_changelog (form_id, jurisdiction, agency, change_date, change_type, description)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			key.FormID, key.Jurisdiction, key.Agency, now, effective, description); err != nil {
			return nil, fmt.Errorf("append changelog %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return r.reload(ctx, key)
}

func (r *PostgresDocumentRepository) reload(ctx context.Context, key domain.DocumentKey) (*domain.DocumentMetadata, error) {
	meta, _, err := r.getMetadata(ctx, r.db, key, false)
	if err != nil {
		return nil, err
	}
	changeLog, err := r.getChangeLog(ctx, key)
	if err != nil {
		return nil, err
	}
	meta.ChangeLog = changeLog
	return meta, nil
}

// ListActive returns active documents matching the filter, highest
// priority first. Sweeps use this for candidate selection.
func (r *PostgresDocumentRepository) ListActive(ctx context.Context, filter domain.ListFilter) ([]*domain.DocumentMetadata, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT form_id, jurisdiction, agency, form_type, title, current_version,
		       document_hash, last_updated, last_checked, effective_date,
		       expiration_date, is_active, priority
		FROM documents
		WHERE is_active
		  AND ($1 = '' OR form_type = $1)
		  AND ($2 = '' OR jurisdiction = $2)
		  AND priority >= $3
		ORDER BY priority DESC, form_id`,
		string(filter.FormType), filter.Jurisdiction, filter.MinPriority)
	if err != nil {
		return nil, fmt.Errorf("list active documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.DocumentMetadata
	for rows.Next() {
		var meta domain.DocumentMetadata
		var expiration sql.NullTime
		if err := rows.Scan(
			&meta.Key.FormID, &meta.Key.Jurisdiction, &meta.Key.Agency,
			&meta.FormType, &meta.Title, &meta.CurrentVersion, &meta.DocumentHash,
			&meta.LastUpdated, &meta.LastChecked, &meta.EffectiveDate,
			&expiration, &meta.IsActive, &meta.Priority,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if expiration.Valid {
			t := expiration.Time
			meta.ExpirationDate = &t
		}
		docs = append(docs, &meta)
	}
	return docs, rows.Err()
}

// MarkChecked bumps last_checked without touching anything else
func (r *PostgresDocumentRepository) MarkChecked(ctx context.Context, key domain.DocumentKey, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET last_checked = $4
		WHERE form_id = $1 AND jurisdiction = $2 AND agency = $3`,
		key.FormID, key.Jurisdiction, key.Agency, at)
	if err != nil {
		return fmt.Errorf("mark checked %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", key, domain.ErrNotFound)
	}
	return nil
}

// PruneContent deletes superseded content blobs fetched before the
// cutoff. A document's current content is never pruned.
func (r *PostgresDocumentRepository) PruneContent(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM document_content c
		WHERE c.fetched_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM documents d WHERE d.content_id = c.id
		  )`, before)
	if err != nil {
		return 0, fmt.Errorf("prune content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune content rows: %w", err)
	}
	return n, nil
}

// isLockContention matches Postgres serialization/deadlock failures
func isLockContention(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}
