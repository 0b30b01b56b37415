// Package watch runs the verification state machine: it scores motion on
// incoming frames, waits for the scene to settle, sends one snapshot per
// steady event to the verifier, and walks the plan forward on correct
// verdicts.
package watch

import (
	"image"
	"time"

	"sparkeye/internal/motion"
	"sparkeye/internal/plan"
	"sparkeye/internal/usage"
	"sparkeye/internal/verify"
)

// State identifies a phase of the verification loop.
type State string

const (
	// StateMoving means the scene is changing; the stillness timer resets
	// on every motion spike.
	StateMoving State = "moving"
	// StateSteady means the scene has been still long enough to capture.
	StateSteady State = "steady"
	// StateAnalyzing means a snapshot is at the verifier.
	StateAnalyzing State = "analyzing"
	// StateFeedback means a verdict is on screen.
	StateFeedback State = "feedback"
	// StateDone means every step of the plan is complete.
	StateDone State = "done"
)

// EventKind classifies engine events.
type EventKind string

const (
	EventState    EventKind = "state"
	EventVerdict  EventKind = "verdict"
	EventStep     EventKind = "step"
	EventSnapshot EventKind = "snapshot"
	EventQuota    EventKind = "quota"
	EventDone     EventKind = "done"
)

// Reasons carried on step completion events.
const (
	ReasonVerified = "verified"
	ReasonSkipped  = "skipped"
)

// Reasons carried on quota lock events.
const (
	ReasonProvider = "provider"
	ReasonBudget   = "budget"
)

// Event is published on every externally visible engine change. The TUI,
// the bridge, and the session recorder all consume the same stream.
type Event struct {
	Kind      EventKind
	At        time.Time
	State     State
	StepIndex int
	Step      plan.Step
	Verdict   *verify.Verdict
	Score     int
	Stillness time.Duration
	Reason    string
	// Frame is set on snapshot events only and carries the image that was
	// sent for analysis.
	Frame    image.Image
	FrameSeq uint64
}

// Status is a point-in-time view of the engine for UIs and the bridge.
type Status struct {
	State           State           `json:"state"`
	StepIndex       int             `json:"step_index"`
	StepCount       int             `json:"step_count"`
	Step            plan.Step       `json:"-"`
	Score           int             `json:"score"`
	MotionThreshold int             `json:"motion_threshold"`
	Stillness       time.Duration   `json:"-"`
	StillnessTarget time.Duration   `json:"-"`
	Cooldown        time.Duration   `json:"-"`
	QuotaLocked     bool            `json:"quota_locked"`
	SteadyLatched   bool            `json:"steady_latched"`
	Verdict         *verify.Verdict `json:"verdict,omitempty"`
	Analyses        int             `json:"analyses"`
	Frames          uint64          `json:"frames"`
	LastFrameAt     time.Time       `json:"last_frame_at"`
	StartedAt       time.Time       `json:"started_at"`
}

// Config wires the engine's collaborators and timing windows.
type Config struct {
	Plan     plan.Plan
	Analyzer verify.Analyzer
	// Tracker enforces the daily call budget when set.
	Tracker *usage.Tracker
	Motion  motion.Config
	// Stillness is how long the scene must hold before a capture.
	Stillness time.Duration
	// Cooldown is the minimum gap between analysis launches.
	Cooldown time.Duration
	// AdvanceDwell is how long a correct verdict stays on screen before
	// the plan advances.
	AdvanceDwell time.Duration
	// Tick drives time-based transitions between frames.
	Tick time.Duration
	// StartStep resumes the plan at a later step (zero-based).
	StartStep   int
	EventBuffer int
}

// DefaultConfig returns the standard timing windows.
func DefaultConfig() Config {
	return Config{
		Motion:       motion.DefaultConfig(),
		Stillness:    5 * time.Second,
		Cooldown:     15 * time.Second,
		AdvanceDwell: 3 * time.Second,
		Tick:         100 * time.Millisecond,
		EventBuffer:  64,
	}
}
