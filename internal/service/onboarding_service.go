package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/formwatch/formwatch/internal/checklist"
	"github.com/formwatch/formwatch/internal/compliance"
	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/notify"
)

// OnboardingResult is returned after a profile is onboarded
type OnboardingResult struct {
	ID                string `json:"id"`
	ChecklistID       string `json:"checklistId"`
	RequiredDocuments int    `json:"requiredDocuments"`
}

// ComplianceNotifier is the slice of the dispatcher the onboarding flow
// needs; tests swap in a recorder.
type ComplianceNotifier interface {
	NotifyComplianceEvent(ctx context.Context, event notify.ComplianceEvent)
}

// OnboardingService creates company and employee profiles with their
// checklists and applies checklist item updates.
type OnboardingService struct {
	builder    *checklist.Builder
	companies  domain.CompanyRepository
	employees  domain.EmployeeRepository
	checklists domain.ChecklistRepository
	notifier   ComplianceNotifier
	logger     *slog.Logger
}

// NewOnboardingService wires the service
func NewOnboardingService(builder *checklist.Builder, companies domain.CompanyRepository, employees domain.EmployeeRepository, checklists domain.ChecklistRepository, notifier ComplianceNotifier, logger *slog.Logger) *OnboardingService {
	return &OnboardingService{
		builder:    builder,
		companies:  companies,
		employees:  employees,
		checklists: checklists,
		notifier:   notifier,
		logger:     logger,
	}
}

// OnboardCompany stores the profile, derives its required-document spec,
// and materializes the checklist. The checklist and its items are created
// in one transaction.
func (s *OnboardingService) OnboardCompany(ctx context.Context, profile domain.CompanyProfile) (*OnboardingResult, error) {
	spec := s.builder.BuildCompanySpec(profile)
	if len(spec) == 0 {
		return nil, domain.NewValidationError("profile", "no required documents derivable for this profile")
	}

	if err := s.companies.Create(ctx, &profile); err != nil {
		return nil, fmt.Errorf("create company: %w", err)
	}

	cl := checklist.Materialize(domain.OwnerCompany, profile.ID, spec)
	if err := s.checklists.CreateWithItems(ctx, cl); err != nil {
		return nil, fmt.Errorf("create company checklist: %w", err)
	}

	s.logger.Info("company onboarded",
		slog.String("company_id", profile.ID),
		slog.String("checklist_id", cl.ID),
		slog.Int("required_documents", countRequired(spec)),
	)
	return &OnboardingResult{
		ID:                profile.ID,
		ChecklistID:       cl.ID,
		RequiredDocuments: countRequired(spec),
	}, nil
}

// OnboardEmployee stores the profile and materializes its checklist
func (s *OnboardingService) OnboardEmployee(ctx context.Context, profile domain.EmployeeProfile) (*OnboardingResult, error) {
	if profile.CompanyID == "" {
		return nil, domain.NewValidationError("companyId", "required")
	}
	if _, err := s.companies.GetByID(ctx, profile.CompanyID); err != nil {
		return nil, err
	}

	spec := s.builder.BuildEmployeeSpec(profile)
	if len(spec) == 0 {
		return nil, domain.NewValidationError("profile", "no required documents derivable for this profile")
	}

	if err := s.employees.Create(ctx, &profile); err != nil {
		return nil, fmt.Errorf("create employee: %w", err)
	}

	cl := checklist.Materialize(domain.OwnerEmployee, profile.ID, spec)
	if err := s.checklists.CreateWithItems(ctx, cl); err != nil {
		return nil, fmt.Errorf("create employee checklist: %w", err)
	}

	return &OnboardingResult{
		ID:                profile.ID,
		ChecklistID:       cl.ID,
		RequiredDocuments: countRequired(spec),
	}, nil
}

// UpdateChecklistItem applies an item mutation. The repository recomputes
// the aggregate in the same transaction; the fresh compliance result fans
// out afterwards.
func (s *OnboardingService) UpdateChecklistItem(ctx context.Context, itemID string, status domain.ItemStatus, fileID string) (*domain.Checklist, error) {
	if !domain.ValidItemStatus(status) {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	updated, err := s.checklists.UpdateItem(ctx, itemID, status, fileID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		spec, err := s.specForOwner(ctx, updated.OwnerKind, updated.OwnerID)
		if err != nil {
			s.logger.Warn("compliance notification skipped",
				slog.String("checklist_id", updated.ID), slog.String("error", err.Error()))
			return updated, nil
		}
		s.notifier.NotifyComplianceEvent(ctx, notify.ComplianceEvent{
			OwnerKind: updated.OwnerKind,
			OwnerID:   updated.OwnerID,
			Result:    compliance.Evaluate(spec, updated),
		})
	}
	return updated, nil
}

func (s *OnboardingService) specForOwner(ctx context.Context, kind domain.ChecklistOwnerKind, ownerID string) ([]domain.RequiredDocumentSpec, error) {
	switch kind {
	case domain.OwnerCompany:
		profile, err := s.companies.GetByID(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		return s.builder.BuildCompanySpec(*profile), nil
	case domain.OwnerEmployee:
		profile, err := s.employees.GetByID(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		return s.builder.BuildEmployeeSpec(*profile), nil
	default:
		return nil, fmt.Errorf("unknown checklist owner kind %q", kind)
	}
}

func countRequired(spec []domain.RequiredDocumentSpec) int {
	n := 0
	for _, entry := range spec {
		if entry.Required {
			n++
		}
	}
	return n
}
