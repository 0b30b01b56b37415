package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultPlan(t *testing.T) {
	p := Default()

	if p.Name != "led-basics" {
		t.Errorf("expected name led-basics, got %q", p.Name)
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 steps, got %d", p.Len())
	}
	first := p.Step(0)
	if first.ID != 1 {
		t.Errorf("expected first step id 1, got %d", first.ID)
	}
	if !strings.Contains(first.Instruction, "pin 13") {
		t.Errorf("first step instruction should mention pin 13, got %q", first.Instruction)
	}
	if p.Step(1).Expected == "" {
		t.Error("second step has no expected visual")
	}
}

func TestParseFullPlan(t *testing.T) {
	src := `
name: button-input
title: Debounced Button
steps:
  - id: 1
    instruction: Place the pushbutton across the breadboard center gap
    expected: Four-leg pushbutton straddling the center channel
    notes: "Legs on the **same side** are connected internally."
  - id: 2
    instruction: Wire pin 2 to the button through a 10k pulldown resistor
    expected: Resistor from the button row to the ground rail
`
	got, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := Plan{
		Name:  "button-input",
		Title: "Debounced Button",
		Steps: []Step{
			{
				ID:          1,
				Instruction: "Place the pushbutton across the breadboard center gap",
				Expected:    "Four-leg pushbutton straddling the center channel",
				Notes:       "Legs on the **same side** are connected internally.",
			},
			{
				ID:          2,
				Instruction: "Wire pin 2 to the button through a 10k pulldown resistor",
				Expected:    "Resistor from the button row to the ground rail",
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parsed plan mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFillsNameFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servo-sweep.yaml")
	content := `
title: Servo Sweep
steps:
  - id: 1
    instruction: Connect the servo signal wire to pin 9
    expected: Servo signal wire on pin 9
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write plan: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "servo-sweep" {
		t.Errorf("expected name from filename, got %q", p.Name)
	}
	if p.DisplayTitle() != "Servo Sweep" {
		t.Errorf("expected title Servo Sweep, got %q", p.DisplayTitle())
	}
}

func TestLoadEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("\n"), 0644); err != nil {
		t.Fatalf("failed to write plan: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty plan file")
	}
}

func TestValidateDuplicateIDs(t *testing.T) {
	p := Plan{
		Name: "dup",
		Steps: []Step{
			{ID: 1, Instruction: "a", Expected: "a"},
			{ID: 1, Instruction: "b", Expected: "b"},
		},
	}
	err := p.Validate()
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if !strings.Contains(err.Error(), "duplicate step id 1") {
		t.Errorf("error should name the duplicate id, got %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	cases := []struct {
		name string
		plan Plan
	}{
		{"no name", Plan{Steps: []Step{{ID: 1, Instruction: "x", Expected: "y"}}}},
		{"no steps", Plan{Name: "p"}},
		{"no instruction", Plan{Name: "p", Steps: []Step{{ID: 1, Expected: "y"}}}},
		{"no expected", Plan{Name: "p", Steps: []Step{{ID: 1, Instruction: "x"}}}},
		{"zero id", Plan{Name: "p", Steps: []Step{{ID: 0, Instruction: "x", Expected: "y"}}}},
	}
	for _, tc := range cases {
		if err := tc.plan.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	write("b.yaml", "name: beta\nsteps:\n  - {id: 1, instruction: i, expected: e}\n")
	write("a.yml", "name: alpha\nsteps:\n  - {id: 1, instruction: i, expected: e}\n")
	write("notes.txt", "ignored")

	plans, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[0].Name != "alpha" || plans[1].Name != "beta" {
		t.Errorf("plans not sorted by name: %s, %s", plans[0].Name, plans[1].Name)
	}
}

func TestLoadDirMissing(t *testing.T) {
	plans, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error, got %v", err)
	}
	if len(plans) != 0 {
		t.Errorf("expected no plans, got %d", len(plans))
	}
}
