package domain

import (
	"context"
	"time"
)

// Event names delivered to webhook subscribers and internal channels
const (
	EventDocumentChanged   = "document.changed"
	EventDocumentNew       = "document.new"
	EventSweepCompleted    = "sweep.completed"
	EventComplianceChanged = "compliance.changed"
)

// WebhookSubscription registers a client endpoint for signed event delivery.
// Subscriptions are created explicitly and live until deleted.
type WebhookSubscription struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubscribedTo reports whether the subscription wants the given event
func (s *WebhookSubscription) SubscribedTo(event string) bool {
	for _, e := range s.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// WebhookRepository persists webhook subscriptions
type WebhookRepository interface {
	Create(ctx context.Context, sub *WebhookSubscription) error
	GetByID(ctx context.Context, id string) (*WebhookSubscription, error)
	ListByClient(ctx context.Context, clientID string) ([]*WebhookSubscription, error)
	ListByEvent(ctx context.Context, event string) ([]*WebhookSubscription, error)
	Delete(ctx context.Context, id string) error
}
