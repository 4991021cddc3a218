// Package registry holds the static mapping from (jurisdiction, agency) to
// retrieval endpoints. The registry is loaded once at startup and passed by
// injection; it is never mutated after Load.
package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/formwatch/formwatch/internal/domain"
)

// SourceConfig describes how to retrieve documents for one agency
type SourceConfig struct {
	Jurisdiction string   `yaml:"jurisdiction"`
	Agency       string   `yaml:"agency"`
	APIEndpoint  string   `yaml:"apiEndpoint"`  // empty means no API retrieval
	ScrapeURL    string   `yaml:"scrapeUrl"`    // base URL for the scraper
	RatePerSec   float64  `yaml:"ratePerSec"`   // outbound rate limit, 0 means default
	Forms        []Form   `yaml:"forms"`        // forms tracked for this agency
	Tags         []string `yaml:"tags,omitempty"`
}

// Form is one tracked form under an agency entry
type Form struct {
	ID       string          `yaml:"id"`
	Title    string          `yaml:"title"`
	Type     domain.FormType `yaml:"type"`
	Priority int             `yaml:"priority"`
}

// Registry is an immutable lookup of source configurations
type Registry struct {
	sources map[string]SourceConfig
}

type registryFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

func key(jurisdiction, agency string) string {
	return strings.ToLower(jurisdiction) + "/" + strings.ToLower(agency)
}

// Load reads a registry from a YAML file
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}
	return Parse(raw)
}

// Parse builds a registry from YAML bytes
func Parse(raw []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("source registry is empty")
	}
	sources := make(map[string]SourceConfig, len(file.Sources))
	for _, src := range file.Sources {
		if src.Jurisdiction == "" || src.Agency == "" {
			return nil, fmt.Errorf("source entry missing jurisdiction or agency")
		}
		k := key(src.Jurisdiction, src.Agency)
		if _, dup := sources[k]; dup {
			return nil, fmt.Errorf("duplicate source entry %s", k)
		}
		sources[k] = src
	}
	return &Registry{sources: sources}, nil
}

// Default returns the built-in registry used when no file is configured
func Default() *Registry {
	r, err := Parse([]byte(defaultSources))
	if err != nil {
		panic(fmt.Sprintf("built-in source registry invalid: %v", err))
	}
	return r
}

// Lookup resolves the source configuration for a jurisdiction/agency pair
func (r *Registry) Lookup(jurisdiction, agency string) (SourceConfig, error) {
	src, ok := r.sources[key(jurisdiction, agency)]
	if !ok {
		return SourceConfig{}, fmt.Errorf("%s/%s: %w", jurisdiction, agency, domain.ErrUnknownSource)
	}
	return src, nil
}

// HasJurisdiction reports whether any agency is registered for the
// jurisdiction. The checklist builder uses this to decide whether state
// withholding and new-hire forms can be tracked.
func (r *Registry) HasJurisdiction(jurisdiction string) bool {
	j := strings.ToLower(jurisdiction)
	for k := range r.sources {
		if strings.HasPrefix(k, j+"/") {
			return true
		}
	}
	return false
}

// FormsFor returns the tracked forms for a jurisdiction across all of its
// agencies, paired with each form's document key.
func (r *Registry) FormsFor(jurisdiction string) []domain.RequiredDocumentSpec {
	j := strings.ToLower(jurisdiction)
	var out []domain.RequiredDocumentSpec
	for _, src := range r.sources {
		if strings.ToLower(src.Jurisdiction) != j {
			continue
		}
		for _, f := range src.Forms {
			out = append(out, domain.RequiredDocumentSpec{
				Key: domain.DocumentKey{
					FormID:       f.ID,
					Jurisdiction: src.Jurisdiction,
					Agency:       src.Agency,
				},
				Required: true,
				Priority: f.Priority,
			})
		}
	}
	return out
}

// All returns every source configuration. The slice is a copy.
func (r *Registry) All() []SourceConfig {
	out := make([]SourceConfig, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	return out
}

// FormInfo resolves the registry entry for a single document key
func (r *Registry) FormInfo(k domain.DocumentKey) (Form, error) {
	src, err := r.Lookup(k.Jurisdiction, k.Agency)
	if err != nil {
		return Form{}, err
	}
	for _, f := range src.Forms {
		if strings.EqualFold(f.ID, k.FormID) {
			return f, nil
		}
	}
	return Form{}, fmt.Errorf("form %s: %w", k.FormID, domain.ErrUnknownSource)
}
