// View rendering for the session TUI: header with plan position, the
// live preview, the state and feedback lines, and the footer.
package session

import (
	"fmt"
	"strings"
	"time"

	"sparkeye/cmd/sparkeye/ui"
	"sparkeye/internal/verify"
	"sparkeye/internal/watch"

	"github.com/charmbracelet/lipgloss"
)

// chromeRows is the screen height taken by everything except the
// preview pane: header, divider, state, feedback, stability, footer.
const chromeRows = 7

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting session..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.renderBody(),
		m.renderStateLine(),
		m.renderFeedback(),
		m.renderStability(),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	badge := m.styles.Badge.Render(" SparkEye ")
	title := m.styles.Title.Render(m.cfg.Plan.DisplayTitle())
	line := lipgloss.JoinHorizontal(lipgloss.Center, badge, "  ", title)
	if m.cfg.Provider == string(verify.ProviderSimulated) {
		marker := m.styles.VerdictPartial.Render("SIMULATED")
		line = lipgloss.JoinHorizontal(lipgloss.Center, line, "  ", marker)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		line,
		m.renderStepLine(),
		m.styles.RenderDivider(m.width),
	)
}

// renderStepLine mirrors the overlay's top line: the live instruction,
// or the completion banner.
func (m Model) renderStepLine() string {
	if m.status.State == watch.StateDone {
		return m.styles.StateDone.Render("All steps completed!")
	}
	prefix := fmt.Sprintf("Step %d/%d: ", m.status.StepIndex+1, m.status.StepCount)
	return m.styles.Bold.Render(prefix) + m.styles.Body.Render(m.status.Step.Instruction)
}

func (m Model) renderBody() string {
	preview := m.renderPreviewPane()
	if !m.showDetails {
		return preview
	}
	details := m.styles.DetailsPane.
		Width(m.detailsWidth()).
		Render(m.detailsContent())
	return lipgloss.JoinHorizontal(lipgloss.Top, preview, details)
}

func (m Model) renderPreviewPane() string {
	maxCols, maxRows := m.previewCols(), m.previewRows()
	var body string
	if m.frame == nil {
		body = m.styles.Muted.Render("Waiting for the first frame...")
	} else {
		b := m.frame.Bounds()
		cols, rows := ui.FitPreview(b.Dx(), b.Dy(), maxCols, maxRows)
		body = ui.RenderPreview(m.frame, cols, rows, m.cfg.Mirror)
	}
	if !m.showBorder {
		return body
	}
	return m.styles.PreviewBorder.Render(body)
}

func (m Model) previewCols() int {
	cols := m.width
	if m.showDetails {
		cols -= m.detailsWidth()
	}
	if m.showBorder {
		cols -= 2
	}
	if cols < 10 {
		cols = 10
	}
	return cols - 2
}

func (m Model) previewRows() int {
	rows := m.height - chromeRows
	if m.showBorder {
		rows -= 2
	}
	if rows < 4 {
		rows = 4
	}
	return rows
}

func (m Model) detailsWidth() int {
	w := m.width / 3
	if w < 24 {
		w = 24
	}
	return w
}

func (m Model) detailsContent() string {
	if m.status.State == watch.StateDone {
		return m.styles.Muted.Render("Plan complete.")
	}
	step := m.status.Step

	var sb strings.Builder
	sb.WriteString(m.styles.Bold.Render("Verifier looks for") + "\n")
	sb.WriteString(m.styles.Body.Render(step.Expected) + "\n")
	if m.notes != "" {
		sb.WriteString(m.notes)
	} else {
		sb.WriteString("\n" + m.styles.Muted.Render("No notes for this step."))
	}
	return sb.String()
}

// renderStateLine maps engine state to the overlay wording.
func (m Model) renderStateLine() string {
	st := m.status
	switch st.State {
	case watch.StateMoving:
		return m.styles.StateMoving.Render("Stabilize camera...")

	case watch.StateSteady:
		switch {
		case st.QuotaLocked:
			return m.styles.StateLocked.Render("QUOTA EXHAUSTED. Try tomorrow.")
		case st.SteadyLatched:
			return m.styles.StateAnalyzing.Render("Done. Move to retry.")
		case st.Cooldown > 0:
			return m.styles.StateAnalyzing.Render(
				fmt.Sprintf("Cooldown (%ds)...", int(st.Cooldown/time.Second)))
		default:
			return m.styles.StateSteady.Render("Hold steady...")
		}

	case watch.StateAnalyzing:
		return m.spinner.View() + " " + m.styles.StateAnalyzing.Render("Thinking...")

	case watch.StateFeedback:
		if st.Verdict == nil {
			return m.styles.StateMoving.Render("Processing...")
		}
		if st.Verdict.Status == verify.StatusCorrect {
			return m.styles.StateDone.Render(
				fmt.Sprintf("Next step in %ds...", int(m.cfg.AdvanceDwell/time.Second)))
		}
		return m.verdictStyle(st.Verdict.Status).Render("Feedback received")

	case watch.StateDone:
		return m.styles.StateDone.Render("All steps completed!")
	}
	return ""
}

// renderFeedback shows the latest verdict until a new one replaces it.
func (m Model) renderFeedback() string {
	v := m.status.Verdict
	if v == nil {
		return ""
	}

	var prefix string
	switch v.Status {
	case verify.StatusCorrect:
		prefix = "CORRECT: "
	case verify.StatusPartial:
		prefix = "PARTIAL: "
	default:
		prefix = "INCORRECT: "
	}

	line := m.verdictStyle(v.Status).Render(prefix) + m.styles.Body.Render(v.Feedback)
	if v.Cached {
		line += m.styles.Muted.Render("  (cached)")
	}
	return line
}

func (m Model) verdictStyle(s verify.Status) lipgloss.Style {
	switch s {
	case verify.StatusCorrect:
		return m.styles.VerdictCorrect
	case verify.StatusPartial:
		return m.styles.VerdictPartial
	case verify.StatusIncorrect:
		return m.styles.VerdictIncorrect
	default:
		return m.styles.VerdictError
	}
}

// renderStability shows the settle progress while the scene is still
// moving toward a capture. Hidden once a snapshot is in flight.
func (m Model) renderStability() string {
	st := m.status
	if st.State != watch.StateMoving && st.State != watch.StateSteady {
		return ""
	}
	if st.StillnessTarget <= 0 {
		return ""
	}
	frac := float64(st.Stillness) / float64(st.StillnessTarget)
	if frac > 1 {
		frac = 1
	}
	return m.stability.ViewAs(frac)
}

func (m Model) renderFooter() string {
	parts := []string{"session " + shortID(m.cfg.SessionID), m.providerLabel()}

	if m.cfg.Tracker != nil {
		if rem := m.cfg.Tracker.Remaining(); rem >= 0 {
			parts = append(parts, fmt.Sprintf("calls %d (%d left)", m.callsToday, rem))
		} else {
			parts = append(parts, fmt.Sprintf("calls %d", m.callsToday))
		}
	}

	parts = append(parts, "q: quit | r: retry | n: skip | d: notes | b: border")
	return m.styles.Footer.Render(strings.Join(parts, "  |  "))
}

func (m Model) providerLabel() string {
	if m.cfg.Model == "" {
		return m.cfg.Provider
	}
	return m.cfg.Provider + "/" + m.cfg.Model
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
