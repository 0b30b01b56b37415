package session

import (
	"fmt"
	"time"

	"sparkeye/cmd/sparkeye/ui"
	"sparkeye/internal/logging"
	"sparkeye/internal/watch"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// New builds the session model and subscribes it to the engine's event
// stream. The subscription is released on quit.
func New(cfg Config) Model {
	if cfg.AdvanceDwell <= 0 {
		cfg.AdvanceDwell = watch.DefaultConfig().AdvanceDwell
	}

	styles := ui.DefaultStyles()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	events, unsub := cfg.Engine.Subscribe()

	m := Model{
		cfg:        cfg,
		styles:     styles,
		spinner:    sp,
		stability:  bar,
		events:     events,
		unsub:      unsub,
		showBorder: true,
		status:     cfg.Engine.Snapshot(),
	}
	if cfg.Tracker != nil {
		m.callsToday = cfg.Tracker.Today().Calls
	}
	return m
}

// Init starts the event wait, the readout tick, and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForEvent(),
		tick(),
	)
}

// waitForEvent blocks on the engine subscription and delivers the next
// event as a message. Re-armed from Update after every delivery.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return engineClosedMsg{}
		}
		return engineEventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh re-reads the engine snapshot and the latest frame.
func (m *Model) refresh() {
	m.status = m.cfg.Engine.Snapshot()
	m.frame, m.frameSeq, _ = m.cfg.Engine.LatestFrame()
	if m.cfg.Tracker != nil {
		m.callsToday = m.cfg.Tracker.Today().Calls
	}
}

// teardown releases the engine subscription and stops the session
// goroutines. Calling it twice is harmless.
func (m *Model) teardown() {
	if m.unsub != nil {
		m.unsub()
	}
	if m.cfg.Quit != nil {
		m.cfg.Quit()
	}
}

// Run drives the session TUI until the user quits or the engine stops.
func Run(cfg Config) error {
	logging.UI("session ui starting for plan %s", cfg.Plan.Name)
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("session ui failed: %w", err)
	}
	logging.UI("session ui stopped")
	return nil
}
