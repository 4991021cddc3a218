package domain

import (
	"context"
	"time"
)

// CompanyProfile drives the company-side required-document rule table
type CompanyProfile struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Jurisdiction      string `json:"jurisdiction"`
	CompanyType       string `json:"companyType"`
	CompanySize       int    `json:"companySize"`
	HasEmployees      bool   `json:"hasEmployees"`
	HasForeignWorkers bool   `json:"hasForeignWorkers"`
}

// EmployeeProfile drives the employee-side required-document rule table
type EmployeeProfile struct {
	ID              string `json:"id"`
	CompanyID       string `json:"companyId"`
	Jurisdiction    string `json:"jurisdiction"`
	WorkerType      string `json:"workerType"` // w2, contractor
	IsForeignWorker bool   `json:"isForeignWorker"`
	HasBenefits     bool   `json:"hasBenefits"`
}

// RequiredDocumentSpec is one computed entry of a required-document set.
// Identical profiles always yield identical specs.
type RequiredDocumentSpec struct {
	Key      DocumentKey `json:"key"`
	Required bool        `json:"required"`
	Priority int         `json:"priority"`
}

// ChecklistOwnerKind tags which side of the owner union a checklist belongs to
type ChecklistOwnerKind string

const (
	OwnerCompany  ChecklistOwnerKind = "company"
	OwnerEmployee ChecklistOwnerKind = "employee"
)

// ChecklistStatus is the aggregate state of a checklist
type ChecklistStatus string

const (
	ChecklistPending    ChecklistStatus = "pending"
	ChecklistInProgress ChecklistStatus = "in_progress"
	ChecklistCompleted  ChecklistStatus = "completed"
)

// ItemStatus is the state of a single checklist item
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemSubmitted  ItemStatus = "submitted"
	ItemCompleted  ItemStatus = "completed"
)

// ValidItemStatus reports whether s is a known checklist item status
func ValidItemStatus(s ItemStatus) bool {
	switch s {
	case ItemPending, ItemInProgress, ItemSubmitted, ItemCompleted:
		return true
	}
	return false
}

// ChecklistItem tracks one required-or-optional document against a checklist
type ChecklistItem struct {
	ID          string      `json:"id"`
	ChecklistID string      `json:"checklistId"`
	Key         DocumentKey `json:"key"`
	Required    bool        `json:"required"`
	Status      ItemStatus  `json:"status"`
	FileID      string      `json:"fileId,omitempty"`
	Position    int         `json:"position"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Checklist belongs to exactly one company or one employee
type Checklist struct {
	ID          string             `json:"id"`
	OwnerKind   ChecklistOwnerKind `json:"ownerKind"`
	OwnerID     string             `json:"ownerId"`
	Status      ChecklistStatus    `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
	Items       []ChecklistItem    `json:"items"`
}

// Recompute derives the aggregate status from the items. Completed iff
// every required item is completed; a checklist with only optional items
// completes when all of them do. It must run on every item mutation.
func (c *Checklist) Recompute(now time.Time) {
	required := 0
	completedRequired := 0
	completedAll := 0
	touched := false
	for _, it := range c.Items {
		if it.Status != ItemPending {
			touched = true
		}
		if it.Status == ItemCompleted {
			completedAll++
		}
		if !it.Required {
			continue
		}
		required++
		if it.Status == ItemCompleted {
			completedRequired++
		}
	}
	done := false
	if required > 0 {
		done = completedRequired == required
	} else {
		done = len(c.Items) > 0 && completedAll == len(c.Items)
	}
	switch {
	case done:
		c.Status = ChecklistCompleted
		if c.CompletedAt == nil {
			t := now
			c.CompletedAt = &t
		}
	case touched:
		c.Status = ChecklistInProgress
		c.CompletedAt = nil
	default:
		c.Status = ChecklistPending
		c.CompletedAt = nil
	}
}

// ComplianceStatus buckets a compliance percentage
type ComplianceStatus string

const (
	Compliant          ComplianceStatus = "compliant"
	PartiallyCompliant ComplianceStatus = "partially_compliant"
	NonCompliant       ComplianceStatus = "non_compliant"
)

// ComplianceResult is computed on demand and never persisted
type ComplianceResult struct {
	RequiredCount  int              `json:"requiredCount"`
	CompletedCount int              `json:"completedCount"`
	Percentage     float64          `json:"percentage"`
	Status         ComplianceStatus `json:"status"`
}

// ChecklistRepository persists checklists and their items. CreateWithItems
// is atomic: a checklist is never visible with zero items. UpdateItem runs
// the item mutation and the aggregate recomputation in one transaction.
type ChecklistRepository interface {
	CreateWithItems(ctx context.Context, checklist *Checklist) error
	GetByID(ctx context.Context, id string) (*Checklist, error)
	GetByOwner(ctx context.Context, kind ChecklistOwnerKind, ownerID string) (*Checklist, error)
	UpdateItem(ctx context.Context, itemID string, status ItemStatus, fileID string) (*Checklist, error)
}

// CompanyRepository persists company profiles
type CompanyRepository interface {
	Create(ctx context.Context, profile *CompanyProfile) error
	GetByID(ctx context.Context, id string) (*CompanyProfile, error)
}

// EmployeeRepository persists employee profiles
type EmployeeRepository interface {
	Create(ctx context.Context, profile *EmployeeProfile) error
	GetByID(ctx context.Context, id string) (*EmployeeProfile, error)
}
