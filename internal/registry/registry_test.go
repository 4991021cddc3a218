package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/formwatch/formwatch/internal/domain"
)

const sampleSources = `
sources:
  - jurisdiction: federal
    agency: irs
    apiEndpoint: https://api.irs.example/forms
    scrapeUrl: https://irs.example/forms
    ratePerSec: 2
    forms:
      - id: W-4
        title: Employee Withholding Certificate
        type: tax
        priority: 10
      - id: "941"
        title: Employer Quarterly Tax Return
        type: tax
        priority: 8
  - jurisdiction: CA
    agency: edd
    scrapeUrl: https://edd.example/forms
    forms:
      - id: DE-4
        title: California Withholding Allowance
        type: tax
        priority: 7
`

func TestParseAndLookup(t *testing.T) {
	reg, err := Parse([]byte(sampleSources))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	src, err := reg.Lookup("federal", "irs")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if src.APIEndpoint == "" || len(src.Forms) != 2 {
		t.Fatalf("unexpected source config: %+v", src)
	}

	// Lookup is case-insensitive.
	if _, err := reg.Lookup("Federal", "IRS"); err != nil {
		t.Fatalf("case-insensitive lookup: %v", err)
	}

	_, err = reg.Lookup("federal", "nosuchagency")
	if !errors.Is(err, domain.ErrUnknownSource) {
		t.Fatalf("expected unknown source, got %v", err)
	}
}

func TestParseRejectsEmptyAndMalformed(t *testing.T) {
	if _, err := Parse([]byte("sources: []")); err == nil {
		t.Fatalf("empty registry must be rejected")
	}
	if _, err := Parse([]byte("{not yaml")); err == nil {
		t.Fatalf("malformed yaml must be rejected")
	}
	if _, err := Parse([]byte("sources:\n  - agency: irs\n")); err == nil {
		t.Fatalf("entry without jurisdiction must be rejected")
	}
}

func TestParseRejectsDuplicateEntries(t *testing.T) {
	raw := `
sources:
  - jurisdiction: federal
    agency: irs
    forms: [{id: W-4, title: t, type: tax, priority: 1}]
  - jurisdiction: FEDERAL
    agency: IRS
    forms: [{id: W-2, title: t, type: tax, priority: 1}]
`
	if _, err := Parse([]byte(raw)); err == nil {
		t.Fatalf("duplicate jurisdiction/agency pair must be rejected")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(sampleSources), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reg.HasJurisdiction("CA") {
		t.Fatalf("loaded registry missing CA")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file must error")
	}
}

func TestHasJurisdictionAndFormsFor(t *testing.T) {
	reg, err := Parse([]byte(sampleSources))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if !reg.HasJurisdiction("ca") {
		t.Fatalf("jurisdiction check must be case-insensitive")
	}
	if reg.HasJurisdiction("WY") {
		t.Fatalf("WY is not registered")
	}

	specs := reg.FormsFor("federal")
	if len(specs) != 2 {
		t.Fatalf("expected 2 federal specs, got %d", len(specs))
	}
	for _, spec := range specs {
		if !spec.Required {
			t.Fatalf("registry-derived specs default to required")
		}
		if spec.Key.Agency != "irs" {
			t.Fatalf("unexpected agency %s", spec.Key.Agency)
		}
	}
	if specs := reg.FormsFor("WY"); len(specs) != 0 {
		t.Fatalf("unregistered jurisdiction must yield no specs")
	}
}

func TestFormInfo(t *testing.T) {
	reg, err := Parse([]byte(sampleSources))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	info, err := reg.FormInfo(domain.DocumentKey{FormID: "w-4", Jurisdiction: "federal", Agency: "irs"})
	if err != nil {
		t.Fatalf("form info: %v", err)
	}
	if info.Type != domain.FormTypeTax || info.Priority != 10 {
		t.Fatalf("unexpected form info: %+v", info)
	}

	_, err = reg.FormInfo(domain.DocumentKey{FormID: "X-1", Jurisdiction: "federal", Agency: "irs"})
	if !errors.Is(err, domain.ErrUnknownSource) {
		t.Fatalf("unknown form must surface unknown source, got %v", err)
	}
}

func TestDefaultRegistryIsValid(t *testing.T) {
	reg := Default()
	for _, j := range []string{"federal", "CA", "NY", "TX"} {
		if !reg.HasJurisdiction(j) {
			t.Fatalf("default registry missing %s", j)
		}
	}
	if _, err := reg.Lookup("federal", "irs"); err != nil {
		t.Fatalf("default registry missing federal/irs: %v", err)
	}
}
