package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/formwatch/formwatch/internal/checklist"
	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/notify"
	"github.com/formwatch/formwatch/internal/registry"
)

type memCompanyRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.CompanyProfile
}

func (m *memCompanyRepo) Create(ctx context.Context, profile *domain.CompanyProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profiles == nil {
		m.profiles = map[string]*domain.CompanyProfile{}
	}
	m.profiles[profile.ID] = profile
	return nil
}

func (m *memCompanyRepo) GetByID(ctx context.Context, id string) (*domain.CompanyProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type memEmployeeRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.EmployeeProfile
}

func (m *memEmployeeRepo) Create(ctx context.Context, profile *domain.EmployeeProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profiles == nil {
		m.profiles = map[string]*domain.EmployeeProfile{}
	}
	m.profiles[profile.ID] = profile
	return nil
}

func (m *memEmployeeRepo) GetByID(ctx context.Context, id string) (*domain.EmployeeProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type memChecklistRepo struct {
	mu         sync.Mutex
	checklists map[string]*domain.Checklist
}

func (m *memChecklistRepo) CreateWithItems(ctx context.Context, cl *domain.Checklist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checklists == nil {
		m.checklists = map[string]*domain.Checklist{}
	}
	if cl.ID == "" {
		cl.ID = uuid.NewString()
	}
	for i := range cl.Items {
		if cl.Items[i].ID == "" {
			cl.Items[i].ID = uuid.NewString()
		}
		cl.Items[i].ChecklistID = cl.ID
	}
	m.checklists[cl.ID] = cl
	return nil
}

func (m *memChecklistRepo) GetByID(ctx context.Context, id string) (*domain.Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cl, ok := m.checklists[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cl, nil
}

func (m *memChecklistRepo) GetByOwner(ctx context.Context, kind domain.ChecklistOwnerKind, ownerID string) (*domain.Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cl := range m.checklists {
		if cl.OwnerKind == kind && cl.OwnerID == ownerID {
			return cl, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memChecklistRepo) UpdateItem(ctx context.Context, itemID string, status domain.ItemStatus, fileID string) (*domain.Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cl := range m.checklists {
		for i := range cl.Items {
			if cl.Items[i].ID != itemID {
				continue
			}
			cl.Items[i].Status = status
			if fileID != "" {
				cl.Items[i].FileID = fileID
			}
			cl.Items[i].UpdatedAt = time.Now().UTC()
			cl.Recompute(time.Now().UTC())
			return cl, nil
		}
	}
	return nil, domain.ErrNotFound
}

type complianceRecorder struct {
	mu     sync.Mutex
	events []notify.ComplianceEvent
}

func (r *complianceRecorder) NotifyComplianceEvent(ctx context.Context, event notify.ComplianceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type onboardingFixture struct {
	service    *OnboardingService
	companies  *memCompanyRepo
	employees  *memEmployeeRepo
	checklists *memChecklistRepo
	recorder   *complianceRecorder
}

func newOnboardingFixture(t *testing.T) *onboardingFixture {
	t.Helper()
	f := &onboardingFixture{
		companies:  &memCompanyRepo{},
		employees:  &memEmployeeRepo{},
		checklists: &memChecklistRepo{},
		recorder:   &complianceRecorder{},
	}
	builder := checklist.NewBuilder(registry.Default())
	f.service = NewOnboardingService(builder, f.companies, f.employees, f.checklists, f.recorder, slog.Default())
	return f
}

func caCompany(id string) domain.CompanyProfile {
	return domain.CompanyProfile{
		ID:           id,
		Name:         "Acme West",
		Jurisdiction: "CA",
		CompanyType:  "llc",
		CompanySize:  12,
		HasEmployees: true,
	}
}

func TestOnboardCompanyCreatesChecklist(t *testing.T) {
	f := newOnboardingFixture(t)

	result, err := f.service.OnboardCompany(context.Background(), caCompany("co-1"))
	if err != nil {
		t.Fatalf("onboard company: %v", err)
	}
	if result.RequiredDocuments == 0 {
		t.Fatalf("an employer profile must require documents")
	}

	if _, err := f.companies.GetByID(context.Background(), "co-1"); err != nil {
		t.Fatalf("company profile not persisted: %v", err)
	}

	cl, err := f.checklists.GetByOwner(context.Background(), domain.OwnerCompany, "co-1")
	if err != nil {
		t.Fatalf("checklist not persisted: %v", err)
	}
	if cl.ID != result.ChecklistID {
		t.Fatalf("result checklist id %s does not match stored %s", result.ChecklistID, cl.ID)
	}
	if cl.Status != domain.ChecklistPending {
		t.Fatalf("fresh checklist must be pending, got %s", cl.Status)
	}
	for _, item := range cl.Items {
		if item.Status != domain.ItemPending {
			t.Fatalf("fresh item %s must be pending, got %s", item.Key.FormID, item.Status)
		}
	}
}

func TestOnboardEmployeeRequiresExistingCompany(t *testing.T) {
	f := newOnboardingFixture(t)

	_, err := f.service.OnboardEmployee(context.Background(), domain.EmployeeProfile{
		ID: "emp-1", Jurisdiction: "CA", WorkerType: "w2",
	})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("missing companyId must be a validation error, got %v", err)
	}

	_, err = f.service.OnboardEmployee(context.Background(), domain.EmployeeProfile{
		ID: "emp-1", CompanyID: "no-such-company", Jurisdiction: "CA", WorkerType: "w2",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown company must surface not found, got %v", err)
	}
}

func TestOnboardEmployeeCreatesChecklist(t *testing.T) {
	f := newOnboardingFixture(t)
	if _, err := f.service.OnboardCompany(context.Background(), caCompany("co-1")); err != nil {
		t.Fatalf("onboard company: %v", err)
	}

	result, err := f.service.OnboardEmployee(context.Background(), domain.EmployeeProfile{
		ID: "emp-1", CompanyID: "co-1", Jurisdiction: "CA", WorkerType: "w2",
	})
	if err != nil {
		t.Fatalf("onboard employee: %v", err)
	}

	cl, err := f.checklists.GetByOwner(context.Background(), domain.OwnerEmployee, "emp-1")
	if err != nil {
		t.Fatalf("employee checklist not persisted: %v", err)
	}
	if len(cl.Items) == 0 || result.RequiredDocuments == 0 {
		t.Fatalf("a w2 employee must have required documents")
	}
}

func TestUpdateChecklistItemRejectsUnknownStatus(t *testing.T) {
	f := newOnboardingFixture(t)

	_, err := f.service.UpdateChecklistItem(context.Background(), "item-1", "approved", "")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("unknown status must be a validation error, got %v", err)
	}
}

func TestUpdateChecklistItemRecomputesAggregate(t *testing.T) {
	f := newOnboardingFixture(t)
	if _, err := f.service.OnboardCompany(context.Background(), caCompany("co-1")); err != nil {
		t.Fatalf("onboard company: %v", err)
	}
	cl, err := f.checklists.GetByOwner(context.Background(), domain.OwnerCompany, "co-1")
	if err != nil {
		t.Fatalf("get checklist: %v", err)
	}

	var required []string
	for _, item := range cl.Items {
		if item.Required {
			required = append(required, item.ID)
		}
	}
	if len(required) < 2 {
		t.Fatalf("expected at least two required items, got %d", len(required))
	}

	// Completing all but the last leaves the checklist in progress.
	for _, id := range required[:len(required)-1] {
		updated, err := f.service.UpdateChecklistItem(context.Background(), id, domain.ItemCompleted, "")
		if err != nil {
			t.Fatalf("update item: %v", err)
		}
		if updated.Status != domain.ChecklistInProgress {
			t.Fatalf("expected in_progress with required items open, got %s", updated.Status)
		}
	}

	updated, err := f.service.UpdateChecklistItem(context.Background(), required[len(required)-1], domain.ItemCompleted, "")
	if err != nil {
		t.Fatalf("update last item: %v", err)
	}
	if updated.Status != domain.ChecklistCompleted {
		t.Fatalf("expected completed after the last required item, got %s", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("completed checklist must carry a completion time")
	}

	// Reverting one required item reopens the checklist.
	updated, err = f.service.UpdateChecklistItem(context.Background(), required[0], domain.ItemInProgress, "")
	if err != nil {
		t.Fatalf("revert item: %v", err)
	}
	if updated.Status != domain.ChecklistInProgress {
		t.Fatalf("expected in_progress after reverting, got %s", updated.Status)
	}
	if updated.CompletedAt != nil {
		t.Fatalf("reopened checklist must clear its completion time")
	}
}

func TestUpdateChecklistItemNotifiesCompliance(t *testing.T) {
	f := newOnboardingFixture(t)
	if _, err := f.service.OnboardCompany(context.Background(), caCompany("co-1")); err != nil {
		t.Fatalf("onboard company: %v", err)
	}
	cl, _ := f.checklists.GetByOwner(context.Background(), domain.OwnerCompany, "co-1")

	itemID := ""
	for _, item := range cl.Items {
		if item.Required {
			itemID = item.ID
			break
		}
	}

	if _, err := f.service.UpdateChecklistItem(context.Background(), itemID, domain.ItemCompleted, "file-1"); err != nil {
		t.Fatalf("update item: %v", err)
	}

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	if len(f.recorder.events) != 1 {
		t.Fatalf("expected one compliance event, got %d", len(f.recorder.events))
	}
	event := f.recorder.events[0]
	if event.OwnerKind != domain.OwnerCompany || event.OwnerID != "co-1" {
		t.Fatalf("event attributed to the wrong owner: %+v", event)
	}
	if event.Result.CompletedCount != 1 {
		t.Fatalf("expected one completed item in the result, got %d", event.Result.CompletedCount)
	}
	if event.Result.Status == domain.Compliant {
		t.Fatalf("one item out of several cannot be fully compliant")
	}
}

func TestUpdateChecklistItemStoresFileID(t *testing.T) {
	f := newOnboardingFixture(t)
	if _, err := f.service.OnboardCompany(context.Background(), caCompany("co-1")); err != nil {
		t.Fatalf("onboard company: %v", err)
	}
	cl, _ := f.checklists.GetByOwner(context.Background(), domain.OwnerCompany, "co-1")
	itemID := cl.Items[0].ID

	updated, err := f.service.UpdateChecklistItem(context.Background(), itemID, domain.ItemSubmitted, "file-42")
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	for _, item := range updated.Items {
		if item.ID == itemID {
			if item.FileID != "file-42" {
				t.Fatalf("expected file id recorded, got %q", item.FileID)
			}
			return
		}
	}
	t.Fatalf("updated item missing from checklist")
}
