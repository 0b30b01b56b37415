// Package session is the interactive surface for a build session: a
// bubbletea model showing the live camera preview, the current plan
// step, the watch state line, and the latest verdict, with hotkeys for
// retry and skip.
package session

import (
	"image"
	"time"

	"sparkeye/cmd/sparkeye/ui"
	"sparkeye/internal/plan"
	"sparkeye/internal/usage"
	"sparkeye/internal/watch"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/glamour"
)

// tickInterval drives the stillness and cooldown readouts between
// engine events.
const tickInterval = 100 * time.Millisecond

// Config wires a session model to its running engine.
type Config struct {
	Engine    *watch.Engine
	Plan      plan.Plan
	SessionID string
	// Provider and Model label the verifier in the footer.
	Provider string
	Model    string
	// AdvanceDwell is the pause shown in the "Next step in Ns..." line.
	// Must match the engine's dwell window.
	AdvanceDwell time.Duration
	// Tracker is optional; when set the footer shows today's call count.
	Tracker *usage.Tracker
	// Mirror flips the preview horizontally so the image moves the way
	// the builder's hands do.
	Mirror bool
	// Quit is called when the user quits, before the program exits.
	// Wire it to the session's root context cancel.
	Quit func()
}

// Model is the bubbletea model for an interactive session.
type Model struct {
	cfg    Config
	styles ui.Styles

	spinner   spinner.Model
	stability progress.Model
	renderer  *glamour.TermRenderer

	events <-chan watch.Event
	unsub  func()

	status   watch.Status
	frame    image.Image
	frameSeq uint64

	width  int
	height int
	ready  bool

	showDetails bool
	showBorder  bool
	notes       string // rendered step notes, cached per step and width
	notesStep   int

	callsToday int64
	quitting   bool
}

// Messages for tea updates
type (
	// engineEventMsg wraps one event from the engine subscription.
	engineEventMsg watch.Event

	// engineClosedMsg reports that the engine stopped and the event
	// channel closed behind it.
	engineClosedMsg struct{}

	// tickMsg refreshes the status readouts between events.
	tickMsg time.Time
)
