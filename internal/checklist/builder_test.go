package checklist

import (
	"reflect"
	"testing"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/registry"
)

func specForms(spec []domain.RequiredDocumentSpec) map[string]bool {
	out := map[string]bool{}
	for _, s := range spec {
		out[s.Key.Jurisdiction+"/"+s.Key.Agency+"/"+s.Key.FormID] = true
	}
	return out
}

func TestBuildCompanySpecCaliforniaSmallCompany(t *testing.T) {
	b := NewBuilder(registry.Default())
	profile := domain.CompanyProfile{
		Name:              "Acme",
		Jurisdiction:      "CA",
		CompanySize:       10,
		HasEmployees:      true,
		HasForeignWorkers: false,
	}

	forms := specForms(b.BuildCompanySpec(profile))

	for _, want := range []string{
		"federal/uscis/I-9",
		"federal/irs/W-4",
		"CA/edd/DE-4",
		"CA/edd/DE-34",
	} {
		if !forms[want] {
			t.Fatalf("expected %s in spec, got %v", want, forms)
		}
	}
	for _, reject := range []string{
		"federal/irs/1094-C",
		"federal/irs/1095-C",
		"federal/irs/W-8BEN",
	} {
		if forms[reject] {
			t.Fatalf("did not expect %s in spec for size 10 without foreign workers", reject)
		}
	}
}

func TestBuildCompanySpecACAThreshold(t *testing.T) {
	b := NewBuilder(registry.Default())
	profile := domain.CompanyProfile{Name: "Big", Jurisdiction: "federal", CompanySize: 50, HasEmployees: true}

	forms := specForms(b.BuildCompanySpec(profile))
	if !forms["federal/irs/1094-C"] || !forms["federal/irs/1095-C"] {
		t.Fatalf("size 50 must require ACA forms, got %v", forms)
	}

	profile.CompanySize = 49
	forms = specForms(b.BuildCompanySpec(profile))
	if forms["federal/irs/1094-C"] {
		t.Fatalf("size 49 must not require ACA forms")
	}
}

func TestBuildCompanySpecUnregisteredJurisdictionSkipsStateForms(t *testing.T) {
	b := NewBuilder(registry.Default())
	profile := domain.CompanyProfile{Name: "Remote", Jurisdiction: "WY", CompanySize: 5, HasEmployees: true}

	for _, entry := range b.BuildCompanySpec(profile) {
		if entry.Key.Jurisdiction == "WY" {
			t.Fatalf("unregistered jurisdiction must not contribute forms: %v", entry.Key)
		}
	}
}

func TestBuildCompanySpecForeignWorkers(t *testing.T) {
	b := NewBuilder(registry.Default())
	profile := domain.CompanyProfile{Name: "Global", Jurisdiction: "federal", CompanySize: 5, HasEmployees: true, HasForeignWorkers: true}

	forms := specForms(b.BuildCompanySpec(profile))
	if !forms["federal/irs/W-8BEN"] || !forms["federal/irs/1042-S"] {
		t.Fatalf("foreign workers must require W-8BEN and 1042-S, got %v", forms)
	}
}

func TestBuildEmployeeSpecContractor(t *testing.T) {
	b := NewBuilder(registry.Default())
	profile := domain.EmployeeProfile{CompanyID: "c1", Jurisdiction: "federal", WorkerType: "contractor"}

	forms := specForms(b.BuildEmployeeSpec(profile))
	if !forms["federal/irs/W-9"] {
		t.Fatalf("contractor must require W-9")
	}
	if forms["federal/uscis/I-9"] || forms["federal/irs/W-4"] {
		t.Fatalf("contractor must not require I-9 or W-4, got %v", forms)
	}
}

func TestBuildEmployeeSpecW2StateWorker(t *testing.T) {
	b := NewBuilder(registry.Default())
	profile := domain.EmployeeProfile{CompanyID: "c1", Jurisdiction: "NY", WorkerType: "w2"}

	forms := specForms(b.BuildEmployeeSpec(profile))
	for _, want := range []string{"federal/uscis/I-9", "federal/irs/W-4", "NY/dtf/IT-2104"} {
		if !forms[want] {
			t.Fatalf("expected %s for NY w2 worker, got %v", want, forms)
		}
	}
}

func TestBuildEmployeeSpecSkipsEmployerNewHireReport(t *testing.T) {
	b := NewBuilder(registry.Default())
	profile := domain.EmployeeProfile{CompanyID: "c1", Jurisdiction: "CA", WorkerType: "w2"}

	forms := specForms(b.BuildEmployeeSpec(profile))
	if forms["CA/edd/DE-34"] {
		t.Fatalf("DE-34 is an employer filing and must not appear on employee checklists")
	}
	if !forms["CA/edd/DE-4"] {
		t.Fatalf("expected CA withholding form DE-4, got %v", forms)
	}
}

func TestBuildSpecDeterministic(t *testing.T) {
	b := NewBuilder(registry.Default())
	profile := domain.CompanyProfile{Name: "Acme", Jurisdiction: "CA", CompanySize: 60, HasEmployees: true, HasForeignWorkers: true}

	first := b.BuildCompanySpec(profile)
	second := b.BuildCompanySpec(profile)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical profiles must yield identical specs")
	}
}

func TestMaterialize(t *testing.T) {
	b := NewBuilder(registry.Default())
	spec := b.BuildCompanySpec(domain.CompanyProfile{Name: "Acme", Jurisdiction: "CA", CompanySize: 10, HasEmployees: true})

	cl := Materialize(domain.OwnerCompany, "c1", spec)
	if cl.Status != domain.ChecklistPending {
		t.Fatalf("fresh checklist must be pending, got %s", cl.Status)
	}
	if len(cl.Items) != len(spec) {
		t.Fatalf("expected %d items, got %d", len(spec), len(cl.Items))
	}
	for i, item := range cl.Items {
		if item.Status != domain.ItemPending {
			t.Fatalf("item %d not pending", i)
		}
		if item.Position != i {
			t.Fatalf("item %d has position %d", i, item.Position)
		}
	}
}
