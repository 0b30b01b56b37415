// Package plan defines build plans: the ordered assembly steps a session
// walks through and verifies against the camera.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step is one assembly milestone.
type Step struct {
	// ID orders the step within its plan. IDs are unique and positive.
	ID int `yaml:"id"`
	// Instruction tells the builder what to do.
	Instruction string `yaml:"instruction"`
	// Expected describes what the verifier should see once the step is done.
	Expected string `yaml:"expected"`
	// Notes holds optional markdown shown in the session details pane.
	Notes string `yaml:"notes,omitempty"`
}

// Plan is an ordered sequence of steps for one build.
type Plan struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title,omitempty"`
	Steps []Step `yaml:"steps"`
}

// Parse decodes and validates a plan from YAML bytes.
func Parse(data []byte) (Plan, error) {
	if strings.TrimSpace(string(data)) == "" {
		return Plan{}, fmt.Errorf("plan is empty")
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Load reads a plan file from disk. A file without a name field takes its
// name from the file name.
func Load(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return Plan{}, fmt.Errorf("%s: plan is empty", path)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("%s: failed to parse plan: %w", path, err)
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := p.Validate(); err != nil {
		return Plan{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadDir loads every *.yaml / *.yml plan under dir, sorted by name.
// A missing directory is not an error.
func LoadDir(dir string) ([]Plan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plans directory: %w", err)
	}
	var plans []Plan
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		p, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Name < plans[j].Name })
	return plans, nil
}

// Validate checks plan integrity: a name, at least one step, unique
// positive IDs, and non-empty instruction and expected text per step.
func (p Plan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("plan has no name")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan %q has no steps", p.Name)
	}
	seen := make(map[int]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID <= 0 {
			return fmt.Errorf("plan %q: step %d has non-positive id %d", p.Name, i+1, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("plan %q: duplicate step id %d", p.Name, s.ID)
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Instruction) == "" {
			return fmt.Errorf("plan %q: step id %d has no instruction", p.Name, s.ID)
		}
		if strings.TrimSpace(s.Expected) == "" {
			return fmt.Errorf("plan %q: step id %d has no expected visual", p.Name, s.ID)
		}
	}
	return nil
}

// Step returns the step at index i (zero-based).
func (p Plan) Step(i int) Step {
	return p.Steps[i]
}

// Len returns the number of steps.
func (p Plan) Len() int {
	return len(p.Steps)
}

// DisplayTitle returns the human title, falling back to the plan name.
func (p Plan) DisplayTitle() string {
	if strings.TrimSpace(p.Title) != "" {
		return p.Title
	}
	return p.Name
}
