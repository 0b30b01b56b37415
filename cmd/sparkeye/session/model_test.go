package session

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sparkeye/internal/plan"
	"sparkeye/internal/verify"
	"sparkeye/internal/watch"
)

func newTestEngine(t *testing.T) *watch.Engine {
	t.Helper()

	cfg := watch.DefaultConfig()
	cfg.Plan = plan.Default()
	cfg.Analyzer = verify.NewSimClient(time.Millisecond)

	eng, err := watch.New(cfg)
	if err != nil {
		t.Fatalf("watch.New: %v", err)
	}
	return eng
}

func newTestModel(t *testing.T) Model {
	t.Helper()

	eng := newTestEngine(t)
	return New(Config{
		Engine:       eng,
		Plan:         plan.Default(),
		SessionID:    "0b54c0de-4a1f-4d5e-9c3a-1f00aa11bb22",
		Provider:     "simulated",
		Model:        "sim",
		AdvanceDwell: 3 * time.Second,
	})
}

// sized delivers a window size so the view renders fully.
func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 32})
	return next.(Model)
}

func keyMsg(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelStartsMoving(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)

	if m.status.State != watch.StateMoving {
		t.Errorf("initial state = %s, want %s", m.status.State, watch.StateMoving)
	}
	if m.status.StepCount != 2 {
		t.Errorf("step count = %d, want 2", m.status.StepCount)
	}
	if got := m.View(); got != "Starting session..." {
		t.Errorf("view before sizing = %q", got)
	}
}

func TestWindowSizeReadiesView(t *testing.T) {
	t.Parallel()
	m := sized(newTestModel(t))

	if !m.ready {
		t.Fatal("model not ready after window size")
	}

	view := m.View()
	for _, want := range []string{
		"SparkEye",
		"Step 1/2:",
		"Connect the LED anode",
		"Stabilize camera...",
		"Waiting for the first frame...",
		"q: quit",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestQuitKeyTearsDown(t *testing.T) {
	t.Parallel()
	eng := newTestEngine(t)

	called := false
	m := New(Config{
		Engine: eng,
		Plan:   plan.Default(),
		Quit:   func() { called = true },
	})

	next, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg from quit command")
	}
	if !called {
		t.Error("quit hook not invoked")
	}
	if !next.(Model).quitting {
		t.Error("model not marked quitting")
	}
	if next.(Model).View() != "" {
		t.Error("quitting view should be empty")
	}
}

func TestCtrlCQuits(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)

	_, cmd := m.Update(keyMsg("ctrl+c"))
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg from ctrl+c")
	}
}

func TestSkipKeyAdvancesPlan(t *testing.T) {
	t.Parallel()
	m := sized(newTestModel(t))

	next, _ := m.Update(keyMsg("n"))
	m = next.(Model)

	if m.status.StepIndex != 1 {
		t.Fatalf("step index after skip = %d, want 1", m.status.StepIndex)
	}
	if !strings.Contains(m.View(), "Step 2/2:") {
		t.Error("view does not show the second step after skip")
	}

	// Skipping the last step completes the plan.
	next, _ = m.Update(keyMsg("n"))
	m = next.(Model)
	if m.status.State != watch.StateDone {
		t.Errorf("state after final skip = %s, want %s", m.status.State, watch.StateDone)
	}
	if !strings.Contains(m.View(), "All steps completed!") {
		t.Error("view does not show the completion banner")
	}
}

func TestResetKeyKeepsStep(t *testing.T) {
	t.Parallel()
	m := sized(newTestModel(t))

	next, _ := m.Update(keyMsg("n"))
	m = next.(Model)
	next, _ = m.Update(keyMsg("r"))
	m = next.(Model)

	if m.status.StepIndex != 1 {
		t.Errorf("reset moved the step index to %d", m.status.StepIndex)
	}
	if m.status.State != watch.StateMoving {
		t.Errorf("state after reset = %s, want %s", m.status.State, watch.StateMoving)
	}
}

func TestDetailsToggle(t *testing.T) {
	t.Parallel()
	m := sized(newTestModel(t))

	next, _ := m.Update(keyMsg("d"))
	m = next.(Model)
	if !m.showDetails {
		t.Fatal("details pane not enabled")
	}
	if !strings.Contains(m.View(), "Verifier looks for") {
		t.Error("details pane content missing from view")
	}

	next, _ = m.Update(keyMsg("d"))
	m = next.(Model)
	if m.showDetails {
		t.Error("details pane not disabled on second toggle")
	}
}

func TestBorderToggle(t *testing.T) {
	t.Parallel()
	m := sized(newTestModel(t))

	if !m.showBorder {
		t.Fatal("border should default on")
	}
	next, _ := m.Update(keyMsg("b"))
	if next.(Model).showBorder {
		t.Error("border not disabled by toggle")
	}
}

func TestEngineEventRearmsWait(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)

	_, cmd := m.Update(engineEventMsg(watch.Event{Kind: watch.EventState, State: watch.StateSteady}))
	if cmd == nil {
		t.Error("engine event did not re-arm the wait command")
	}
}

func TestEngineClosedQuits(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)

	next, cmd := m.Update(engineClosedMsg{})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg when the engine stops")
	}
	if !next.(Model).quitting {
		t.Error("model not marked quitting")
	}
}

func TestTickRearms(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)

	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick did not re-arm")
	}
}

func TestWaitForEventDeliversAndCloses(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)

	ch := make(chan watch.Event, 1)
	m.events = ch

	ch <- watch.Event{Kind: watch.EventStep, Reason: watch.ReasonSkipped}
	msg := m.waitForEvent()()
	ev, ok := msg.(engineEventMsg)
	if !ok {
		t.Fatalf("expected engineEventMsg, got %T", msg)
	}
	if ev.Kind != watch.EventStep {
		t.Errorf("event kind = %s, want %s", ev.Kind, watch.EventStep)
	}

	close(ch)
	if _, ok := m.waitForEvent()().(engineClosedMsg); !ok {
		t.Error("closed channel should yield engineClosedMsg")
	}
}
