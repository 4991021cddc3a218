// Package checklist derives the required-document set for a company or
// employee profile. The rule tables are deterministic: identical profiles
// always produce identical specs.
package checklist

import (
	"sort"
	"strings"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/registry"
)

// ACA reporting applies from this headcount up
const acaThreshold = 50

// Builder computes required-document specs against the source registry.
// State-level forms are only added when the jurisdiction is registered, so
// the checklist never tracks a document the engine cannot fetch.
type Builder struct {
	registry *registry.Registry
}

// NewBuilder creates a builder over an immutable registry
func NewBuilder(reg *registry.Registry) *Builder {
	return &Builder{registry: reg}
}

func federalKey(formID, agency string) domain.DocumentKey {
	return domain.DocumentKey{FormID: formID, Jurisdiction: "federal", Agency: agency}
}

// BuildCompanySpec computes the company-side required-document set
func (b *Builder) BuildCompanySpec(profile domain.CompanyProfile) []domain.RequiredDocumentSpec {
	var spec []domain.RequiredDocumentSpec

	if profile.HasEmployees {
		spec = append(spec,
			domain.RequiredDocumentSpec{Key: federalKey("I-9", "uscis"), Required: true, Priority: 10},
			domain.RequiredDocumentSpec{Key: federalKey("W-4", "irs"), Required: true, Priority: 10},
			domain.RequiredDocumentSpec{Key: federalKey("W-2", "irs"), Required: true, Priority: 9},
			domain.RequiredDocumentSpec{Key: federalKey("941", "irs"), Required: true, Priority: 8},
		)
	}

	if !strings.EqualFold(profile.Jurisdiction, "federal") && b.registry.HasJurisdiction(profile.Jurisdiction) {
		spec = append(spec, b.stateForms(profile.Jurisdiction)...)
	}

	if profile.CompanySize >= acaThreshold {
		spec = append(spec,
			domain.RequiredDocumentSpec{Key: federalKey("1094-C", "irs"), Required: true, Priority: 6},
			domain.RequiredDocumentSpec{Key: federalKey("1095-C", "irs"), Required: true, Priority: 6},
		)
	}

	if profile.HasForeignWorkers {
		spec = append(spec,
			domain.RequiredDocumentSpec{Key: federalKey("W-8BEN", "irs"), Required: true, Priority: 5},
			domain.RequiredDocumentSpec{Key: federalKey("1042-S", "irs"), Required: true, Priority: 5},
		)
	}

	return spec
}

// BuildEmployeeSpec computes the employee-side required-document set
func (b *Builder) BuildEmployeeSpec(profile domain.EmployeeProfile) []domain.RequiredDocumentSpec {
	var spec []domain.RequiredDocumentSpec

	if strings.EqualFold(profile.WorkerType, "contractor") {
		spec = append(spec,
			domain.RequiredDocumentSpec{Key: federalKey("W-9", "irs"), Required: true, Priority: 9},
		)
	} else {
		spec = append(spec,
			domain.RequiredDocumentSpec{Key: federalKey("I-9", "uscis"), Required: true, Priority: 10},
			domain.RequiredDocumentSpec{Key: federalKey("W-4", "irs"), Required: true, Priority: 10},
		)
	}

	if profile.IsForeignWorker {
		spec = append(spec,
			domain.RequiredDocumentSpec{Key: federalKey("W-8BEN", "irs"), Required: true, Priority: 6},
		)
	}

	if !strings.EqualFold(profile.Jurisdiction, "federal") && b.registry.HasJurisdiction(profile.Jurisdiction) {
		for _, entry := range b.stateForms(profile.Jurisdiction) {
			// New-hire reporting is the employer's filing, not the worker's
			if entry.Key.FormID == "DE-34" {
				continue
			}
			spec = append(spec, entry)
		}
	}

	return spec
}

// stateForms returns the registered withholding and new-hire forms for a
// jurisdiction in a stable order.
func (b *Builder) stateForms(jurisdiction string) []domain.RequiredDocumentSpec {
	forms := b.registry.FormsFor(jurisdiction)
	sortSpecs(forms)
	return forms
}

func sortSpecs(specs []domain.RequiredDocumentSpec) {
	// Priority descending, then form id for determinism
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Priority != specs[j].Priority {
			return specs[i].Priority > specs[j].Priority
		}
		return specs[i].Key.FormID < specs[j].Key.FormID
	})
}

// Materialize builds a checklist from a spec: one pending item per entry
func Materialize(ownerKind domain.ChecklistOwnerKind, ownerID string, spec []domain.RequiredDocumentSpec) *domain.Checklist {
	c := &domain.Checklist{
		OwnerKind: ownerKind,
		OwnerID:   ownerID,
		Status:    domain.ChecklistPending,
	}
	for i, entry := range spec {
		c.Items = append(c.Items, domain.ChecklistItem{
			Key:      entry.Key,
			Required: entry.Required,
			Status:   domain.ItemPending,
			Position: i,
		})
	}
	return c
}
