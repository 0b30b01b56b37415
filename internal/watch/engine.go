package watch

import (
	"errors"
	"image"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sparkeye/internal/logging"
	"sparkeye/internal/motion"
	"sparkeye/internal/plan"
	"sparkeye/internal/verify"
)

// ErrSourceClosed is returned by Run when the frame channel closes before
// the context does.
var ErrSourceClosed = errors.New("watch: frame source closed")

// Engine owns the verification state machine. One engine serves one
// session; construct it with New and drive it with Run.
type Engine struct {
	cfg   Config
	det   *motion.Detector
	clock func() time.Time

	mu           sync.Mutex
	state        State
	stepIdx      int
	lastMotion   time.Time
	lastCall     time.Time
	latched      bool
	quotaLocked  bool
	verdict      *verify.Verdict
	feedbackAt   time.Time
	lastScore    int
	frames       uint64
	lastFrame    image.Image
	lastFrameSeq uint64
	lastFrameAt  time.Time
	analyses     int
	startedAt    time.Time

	group   *errgroup.Group
	events  chan Event
	results chan analysisResult

	subMu      sync.Mutex
	subs       []chan Event
	subsClosed bool
}

type analysisResult struct {
	verdict verify.Verdict
	err     error
	step    plan.Step
	seq     uint64
}

// New builds an engine from cfg, filling zero timing fields with defaults.
func New(cfg Config) (*Engine, error) {
	if cfg.Plan.Len() == 0 {
		return nil, errors.New("watch: plan has no steps")
	}
	if cfg.Analyzer == nil {
		return nil, errors.New("watch: analyzer is required")
	}
	def := DefaultConfig()
	if cfg.Stillness <= 0 {
		cfg.Stillness = def.Stillness
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.AdvanceDwell <= 0 {
		cfg.AdvanceDwell = def.AdvanceDwell
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if cfg.StartStep < 0 {
		cfg.StartStep = 0
	}
	if cfg.StartStep > cfg.Plan.Len() {
		cfg.StartStep = cfg.Plan.Len()
	}

	e := &Engine{
		cfg:     cfg,
		det:     motion.NewDetector(cfg.Motion),
		clock:   time.Now,
		stepIdx: cfg.StartStep,
		state:   StateMoving,
		group:   &errgroup.Group{},
		events:  make(chan Event, cfg.EventBuffer),
		results: make(chan analysisResult, 1),
	}
	if e.stepIdx >= cfg.Plan.Len() {
		e.state = StateDone
	}
	now := e.clock()
	e.lastMotion = now
	e.startedAt = now
	return e, nil
}

// Snapshot returns the current engine status.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()
	s := Status{
		State:           e.state,
		StepIndex:       e.stepIdx,
		StepCount:       e.cfg.Plan.Len(),
		Score:           e.lastScore,
		MotionThreshold: e.det.Threshold(),
		StillnessTarget: e.cfg.Stillness,
		QuotaLocked:     e.quotaLocked,
		SteadyLatched:   e.latched,
		Analyses:        e.analyses,
		Frames:          e.frames,
		LastFrameAt:     e.lastFrameAt,
		StartedAt:       e.startedAt,
	}
	if e.stepIdx < e.cfg.Plan.Len() {
		s.Step = e.cfg.Plan.Step(e.stepIdx)
	}
	if still := now.Sub(e.lastMotion); still > 0 {
		s.Stillness = still
	}
	if !e.lastCall.IsZero() {
		if rem := e.cfg.Cooldown - now.Sub(e.lastCall); rem > 0 {
			s.Cooldown = rem
		}
	}
	if e.verdict != nil {
		v := *e.verdict
		s.Verdict = &v
	}
	return s
}

// LatestFrame returns the most recent frame seen, for previews and the
// bridge snapshot endpoint. Returns nil before the first frame.
func (e *Engine) LatestFrame() (image.Image, uint64, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFrame, e.lastFrameSeq, e.lastFrameAt
}

// Reset returns the engine to Moving and clears the visible verdict. The
// step index and the quota lock survive a reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	if e.state == StateDone {
		e.mu.Unlock()
		return
	}
	now := e.clock()
	e.state = StateMoving
	e.verdict = nil
	e.latched = false
	e.lastMotion = now
	ev := e.stateEventLocked(now)
	e.mu.Unlock()

	logging.Watch("reset requested, back to moving")
	e.publish(ev)
}

// Skip marks the current step done without verification and advances.
// Skipping is ignored while an analysis is in flight and after Done.
func (e *Engine) Skip() {
	e.mu.Lock()
	if e.state == StateDone || e.state == StateAnalyzing {
		e.mu.Unlock()
		return
	}
	skipped := e.cfg.Plan.Step(e.stepIdx)
	evs := e.advanceStepLocked(ReasonSkipped)
	e.mu.Unlock()

	logging.Watch("step %d skipped", skipped.ID)
	e.publish(evs...)
}

// Subscribe registers an event channel. Slow subscribers lose events
// rather than stalling the engine. The returned cancel func unregisters
// and closes the channel; the channel also closes when Run returns.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, e.cfg.EventBuffer)
	e.subMu.Lock()
	if e.subsClosed {
		close(ch)
		e.subMu.Unlock()
		return ch, func() {}
	}
	e.subs = append(e.subs, ch)
	e.subMu.Unlock()
	return ch, func() { e.unsubscribe(ch) }
}

func (e *Engine) unsubscribe(ch chan Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for i, c := range e.subs {
		if c == ch {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			close(c)
			return
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.subsClosed {
		return
	}
	e.subsClosed = true
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}

// publish queues events for fanout, dropping when the buffer is full so
// callers never block.
func (e *Engine) publish(evs ...Event) {
	for _, ev := range evs {
		select {
		case e.events <- ev:
		default:
			logging.WatchDebug("event buffer full, dropped %s", ev.Kind)
		}
	}
}

func (e *Engine) stateEventLocked(now time.Time) Event {
	return Event{
		Kind:      EventState,
		At:        now,
		State:     e.state,
		StepIndex: e.stepIdx,
		Score:     e.lastScore,
		Stillness: now.Sub(e.lastMotion),
	}
}

func (e *Engine) verdictEventLocked(now time.Time) Event {
	ev := Event{
		Kind:      EventVerdict,
		At:        now,
		State:     e.state,
		StepIndex: e.stepIdx,
		Score:     e.lastScore,
	}
	if e.stepIdx < e.cfg.Plan.Len() {
		ev.Step = e.cfg.Plan.Step(e.stepIdx)
	}
	if e.verdict != nil {
		v := *e.verdict
		ev.Verdict = &v
	}
	return ev
}

// advanceStepLocked completes the current step for the given reason and
// moves to the next one, or to Done past the last.
func (e *Engine) advanceStepLocked(reason string) []Event {
	now := e.clock()
	completed := e.cfg.Plan.Step(e.stepIdx)
	evs := []Event{{
		Kind:      EventStep,
		At:        now,
		State:     e.state,
		StepIndex: e.stepIdx,
		Step:      completed,
		Reason:    reason,
	}}

	e.stepIdx++
	e.verdict = nil
	e.latched = false
	e.lastMotion = now

	if e.stepIdx >= e.cfg.Plan.Len() {
		e.state = StateDone
		evs = append(evs,
			Event{Kind: EventDone, At: now, State: StateDone, StepIndex: e.stepIdx},
			e.stateEventLocked(now))
	} else {
		e.state = StateMoving
		evs = append(evs, e.stateEventLocked(now))
	}
	return evs
}
