package session

import (
	"sparkeye/internal/logging"
	"sparkeye/internal/watch"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.stability.Width = msg.Width - 4
		if m.stability.Width > 60 {
			m.stability.Width = 60
		}
		// Notes wrap to the pane width, so rebuild them on resize.
		m.renderer = nil
		m.notesStep = 0
		m.renderNotes()
		return m, nil

	case engineEventMsg:
		return m.handleEngineEvent(watch.Event(msg))

	case engineClosedMsg:
		// The engine stopped; nothing further will change on screen.
		m.quitting = true
		m.teardown()
		return m, tea.Quit

	case tickMsg:
		m.refresh()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		m.teardown()
		return m, tea.Quit

	case "r":
		m.cfg.Engine.Reset()
		m.refresh()
		return m, nil

	case "n":
		m.cfg.Engine.Skip()
		m.refresh()
		m.renderNotes()
		return m, nil

	case "d":
		m.showDetails = !m.showDetails
		if m.showDetails {
			m.renderNotes()
		}
		return m, nil

	case "b":
		m.showBorder = !m.showBorder
		return m, nil
	}

	return m, nil
}

func (m Model) handleEngineEvent(ev watch.Event) (tea.Model, tea.Cmd) {
	m.refresh()

	switch ev.Kind {
	case watch.EventStep:
		logging.UI("step %d complete (%s)", ev.Step.ID, ev.Reason)
		m.renderNotes()
	case watch.EventDone:
		logging.UI("plan complete")
	}

	return m, m.waitForEvent()
}

// renderNotes caches the current step's notes as rendered markdown.
// Cheap to skip: only the details pane shows them.
func (m *Model) renderNotes() {
	step := m.status.Step
	if step.ID == 0 || step.Notes == "" {
		m.notes = ""
		m.notesStep = step.ID
		return
	}
	if m.notesStep == step.ID && m.notes != "" {
		return
	}

	if m.renderer == nil {
		wrap := m.detailsWidth() - 4
		if wrap < 20 {
			wrap = 20
		}
		if m.styles.Theme.IsDark {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(wrap),
			)
		} else {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithStylePath("light"),
				glamour.WithWordWrap(wrap),
			)
		}
	}

	rendered := step.Notes
	if m.renderer != nil {
		if out, err := m.renderer.Render(step.Notes); err == nil {
			rendered = out
		}
	}
	m.notes = rendered
	m.notesStep = step.ID
}
