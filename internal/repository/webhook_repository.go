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

	"github.com/formwatch/formwatch/internal/domain"
)

// PostgresWebhookRepository persists webhook subscriptions
type PostgresWebhookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresWebhookRepository creates the repository
func NewPostgresWebhookRepository(db *sql.DB, logger *slog.Logger) *PostgresWebhookRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresWebhookRepository{db: db, logger: logger}
}

// Create registers a subscription
func (r *PostgresWebhookRepository) Create(ctx context.Context, sub *domain.WebhookSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions (id, client_id, url, events, secret, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.ClientID, sub.URL, pq.Array(sub.Events), sub.Secret, sub.CreatedAt); err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	r.logger.Debug("webhook subscription created",
		slog.String("id", sub.ID), slog.String("client_id", sub.ClientID))
	return nil
}

// GetByID returns one subscription
func (r *PostgresWebhookRepository) GetByID(ctx context.Context, id string) (*domain.WebhookSubscription, error) {
	var sub domain.WebhookSubscription
	err := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, url, events, secret, created_at
		FROM webhook_subscriptions WHERE id = $1`, id).Scan(
		&sub.ID, &sub.ClientID, &sub.URL, pq.Array(&sub.Events), &sub.Secret, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("webhook %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook %s: %w", id, err)
	}
	return &sub, nil
}

// ListByClient returns a client's subscriptions
func (r *PostgresWebhookRepository) ListByClient(ctx context.Context, clientID string) ([]*domain.WebhookSubscription, error) {
	return r.list(ctx, `WHERE client_id = $1`, clientID)
}

// ListByEvent returns every subscription wanting the given event. The "*"
// wildcard subscribes to everything.
func (r *PostgresWebhookRepository) ListByEvent(ctx context.Context, event string) ([]*domain.WebhookSubscription, error) {
	return r.list(ctx, `WHERE $1 = ANY(events) OR '*' = ANY(events)`, event)
}

func (r *PostgresWebhookRepository) list(ctx context.Context, where string, args ...any) ([]*domain.WebhookSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, url, events, secret, created_at
		FROM webhook_subscriptions `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var subs []*domain.WebhookSubscription
	for rows.Next() {
		var sub domain.WebhookSubscription
		if err := rows.Scan(&sub.ID, &sub.ClientID, &sub.URL, pq.Array(&sub.Events),
			&sub.Secret, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// Delete removes a subscription permanently
func (r *PostgresWebhookRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("webhook %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
