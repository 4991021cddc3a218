package domain

import (
	"context"
	"fmt"
	"time"
)

// FormType classifies a government form by its regulatory purpose
type FormType string

const (
	FormTypeTax        FormType = "tax"
	FormTypeEmployment FormType = "employment"
	FormTypeBenefits   FormType = "benefits"
	FormTypeCompliance FormType = "compliance"
)

// DocumentKey uniquely identifies a tracked form across jurisdictions
type DocumentKey struct {
	FormID       string
	Jurisdiction string
	Agency       string
}

func (k DocumentKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Jurisdiction, k.Agency, k.FormID)
}

// ChangeType classifies how a document changed between versions
type ChangeType string

const (
	ChangeNone     ChangeType = "none"
	ChangeNew      ChangeType = "new"
	ChangeMinor    ChangeType = "minor"
	ChangeRevision ChangeType = "revision"
	ChangeMajor    ChangeType = "major"
)

// ChangeLogEntry records one observed change to a document.
// Entries are append-only and non-decreasing in Date.
type ChangeLogEntry struct {
	Date        time.Time  `json:"date"`
	ChangeType  ChangeType `json:"changeType"`
	Description string     `json:"description"`
}

// DocumentMetadata is the versioned record for a tracked government form
type DocumentMetadata struct {
	Key            DocumentKey
	FormType       FormType
	Title          string
	CurrentVersion string // opaque version token, typically YEAR.REVISION e.g. "2024.1"
	DocumentHash   string // hex sha-256 of the current content
	LastUpdated    time.Time
	LastChecked    time.Time
	EffectiveDate  time.Time
	ExpirationDate *time.Time
	IsActive       bool
	FromArchive    bool // set when served from the archive fallback
	Priority       int  // higher means swept more often
	ChangeLog      []ChangeLogEntry
}

// NeedsUpdate reports whether the document has expired without a fetched
// successor. An expired document stays active until explicitly superseded.
func (m *DocumentMetadata) NeedsUpdate(now time.Time) bool {
	return m.ExpirationDate != nil && m.ExpirationDate.Before(now)
}

// DocumentContent holds the raw bytes for one version of a document.
// Content rows are append-only; metadata repoints to the newest row.
type DocumentContent struct {
	ID          string
	Key         DocumentKey
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// ListFilter narrows ListActive results for sweep candidate selection
type ListFilter struct {
	FormType     FormType // zero value matches all
	Jurisdiction string
	MinPriority  int
}

// DocumentRepository is the Document Store: the single owner of document
// uniqueness and change-log ordering. Upsert is serialized per key; the
// outcome argument is a pre-lock hint that the store re-validates against
// the row it holds locked, so racing refreshes of one key never append
// duplicate change-log entries or advance the version unlogged.
type DocumentRepository interface {
	Get(ctx context.Context, key DocumentKey) (*DocumentMetadata, *DocumentContent, error)
	Upsert(ctx context.Context, meta DocumentMetadata, content *DocumentContent, outcome ChangeType) (*DocumentMetadata, error)
	ListActive(ctx context.Context, filter ListFilter) ([]*DocumentMetadata, error)
	MarkChecked(ctx context.Context, key DocumentKey, at time.Time) error
}
