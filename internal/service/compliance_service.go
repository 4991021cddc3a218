package service

import (
	"context"

	"github.com/formwatch/formwatch/internal/checklist"
	"github.com/formwatch/formwatch/internal/compliance"
	"github.com/formwatch/formwatch/internal/domain"
)

// ComplianceView pairs the on-demand result with the itemized checklist
type ComplianceView struct {
	Result    domain.ComplianceResult `json:"result"`
	Checklist *domain.Checklist       `json:"checklist"`
}

// ComplianceService computes compliance results on demand. Results are
// never persisted; both inputs are fetched fresh per call.
type ComplianceService struct {
	builder    *checklist.Builder
	companies  domain.CompanyRepository
	employees  domain.EmployeeRepository
	checklists domain.ChecklistRepository
}

// NewComplianceService wires the service
func NewComplianceService(builder *checklist.Builder, companies domain.CompanyRepository, employees domain.EmployeeRepository, checklists domain.ChecklistRepository) *ComplianceService {
	return &ComplianceService{
		builder:    builder,
		companies:  companies,
		employees:  employees,
		checklists: checklists,
	}
}

// ForCompany evaluates a company's compliance
func (s *ComplianceService) ForCompany(ctx context.Context, companyID string) (*ComplianceView, error) {
	profile, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	cl, err := s.checklists.GetByOwner(ctx, domain.OwnerCompany, companyID)
	if err != nil {
		return nil, err
	}
	return &ComplianceView{
		Result:    compliance.Evaluate(s.builder.BuildCompanySpec(*profile), cl),
		Checklist: cl,
	}, nil
}

// ForEmployee evaluates an employee's compliance
func (s *ComplianceService) ForEmployee(ctx context.Context, employeeID string) (*ComplianceView, error) {
	profile, err := s.employees.GetByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	cl, err := s.checklists.GetByOwner(ctx, domain.OwnerEmployee, employeeID)
	if err != nil {
		return nil, err
	}
	return &ComplianceView{
		Result:    compliance.Evaluate(s.builder.BuildEmployeeSpec(*profile), cl),
		Checklist: cl,
	}, nil
}
