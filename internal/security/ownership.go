package security

import (
	"fmt"
	"log/slog"

	"github.com/formwatch/formwatch/internal/domain"
)

// ResourceType identifies the kind of resource being accessed
type ResourceType string

const (
	ResourceWebhook   ResourceType = "webhook"
	ResourceChecklist ResourceType = "checklist"
	ResourceFile      ResourceType = "file"
)

// OwnershipCheck describes one resource access by a client
type OwnershipCheck struct {
	ResourceType ResourceType
	ResourceID   string
	OwnerID      string // client that owns the resource
}

// OwnershipGuard enforces that clients only touch resources they own.
// Tiers grant features, never access to another client's resources.
type OwnershipGuard struct {
	logger *slog.Logger
}

// NewOwnershipGuard creates the guard
func NewOwnershipGuard(logger *slog.Logger) *OwnershipGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &OwnershipGuard{logger: logger}
}

// Require returns ErrAccessDenied unless clientID owns the resource
func (g *OwnershipGuard) Require(clientID string, check OwnershipCheck) error {
	if check.OwnerID == clientID {
		return nil
	}
	g.logger.Warn("resource access denied",
		slog.String("client_id", clientID),
		slog.String("resource_id", check.ResourceID),
		slog.String("resource_type", string(check.ResourceType)),
		slog.String("owner_id", check.OwnerID),
	)
	return fmt.Errorf("%s %s: %w", check.ResourceType, check.ResourceID, domain.ErrAccessDenied)
}
