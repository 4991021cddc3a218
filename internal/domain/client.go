package domain

import "time"

// Tier names mirror the feature table in internal/security.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Client is an API consumer. Tier gates features; Jurisdictions lists the
// state codes the client may force-refresh or subscribe to ("*" for all).
type Client struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Tier          string    `json:"tier"`
	Jurisdictions []string  `json:"jurisdictions"`
	CreatedAt     time.Time `json:"created_at"`
}

// ClientRepository persists API clients.
type ClientRepository interface {
	Create(client *Client) error
	GetByID(id string) (*Client, error)
	GetByEmail(email string) (*Client, error)
}
