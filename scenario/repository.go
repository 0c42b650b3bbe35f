package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Repository is an immutable ordered collection of scenarios.
type Repository struct {
	variant Variant
	items   []Scenario
}

// NewRepository validates every scenario for the variant and returns a
// repository holding a private copy of them.
func NewRepository(v Variant, items []Scenario) (*Repository, error) {
	out := make([]Scenario, len(items))
	for i := range items {
		if err := items[i].Validate(v); err != nil {
			return nil, fmt.Errorf("scenario %d: %w", i, err)
		}
		out[i] = cloneScenario(items[i])
	}
	return &Repository{variant: v, items: out}, nil
}

// Load reads a scenario file.  The format is picked from the extension:
// .json, .yaml or .yml.  The document is a top-level list of scenarios.
func Load(path string, v Variant) (*Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var items []Scenario
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format: %s", ext)
	}
	return NewRepository(v, items)
}

// Variant returns the traffic family the scenarios were validated for.
func (r *Repository) Variant() Variant { return r.variant }

// Len returns the number of scenarios.
func (r *Repository) Len() int {
	if r == nil {
		return 0
	}
	return len(r.items)
}

// At returns a copy of the i-th scenario.
func (r *Repository) At(i int) Scenario { return cloneScenario(r.items[i]) }

// Labels lists scenario labels in file order.
func (r *Repository) Labels() []string {
	out := make([]string, len(r.items))
	for i := range r.items {
		out[i] = r.items[i].Label
	}
	return out
}

func cloneScenario(s Scenario) Scenario {
	s.Delay = append([]int(nil), s.Delay...)
	s.Commands = append([]string(nil), s.Commands...)
	s.ThrottleTime = append([]int(nil), s.ThrottleTime...)
	s.RequestMaxSize = append([]int(nil), s.RequestMaxSize...)
	return s
}
