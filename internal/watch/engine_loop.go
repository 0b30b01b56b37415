package watch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/sync/errgroup"

	"sparkeye/internal/capture"
	"sparkeye/internal/logging"
	"sparkeye/internal/plan"
	"sparkeye/internal/usage"
	"sparkeye/internal/verify"
)

// quotaFeedback is shown when either the provider or the local budget
// locks further analysis for the day.
const quotaFeedback = "Daily quota exhausted. Try tomorrow."

// Run drives the engine until ctx is cancelled or the frame channel
// closes. It blocks; event fanout and analysis calls run in goroutines
// supervised alongside the loop. Subscriber channels close on return.
func (e *Engine) Run(ctx context.Context, frames <-chan capture.Frame) error {
	g, gctx := errgroup.WithContext(ctx)
	e.mu.Lock()
	e.group = g
	e.startedAt = e.clock()
	e.mu.Unlock()

	g.Go(func() error { return e.fanout(gctx) })
	g.Go(func() error { return e.loop(gctx, frames) })

	err := g.Wait()
	e.closeSubscribers()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) loop(ctx context.Context, frames <-chan capture.Frame) error {
	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	e.mu.Lock()
	first := e.stateEventLocked(e.clock())
	e.mu.Unlock()
	e.publish(first)
	logging.Watch("engine started: plan=%s steps=%d start=%d",
		e.cfg.Plan.Name, e.cfg.Plan.Len(), e.cfg.StartStep)

	for {
		select {
		case <-ctx.Done():
			logging.Watch("engine stopping: %v", ctx.Err())
			return ctx.Err()

		case res := <-e.results:
			e.finishAnalysis(ctx, res)

		case f, ok := <-frames:
			if !ok {
				logging.WatchWarn("frame source closed")
				return ErrSourceClosed
			}
			e.handleFrame(ctx, f)

		case <-ticker.C:
			now := e.clock()
			e.mu.Lock()
			evs := e.advanceLocked(ctx, now)
			e.mu.Unlock()
			e.publish(evs...)
		}
	}
}

// fanout copies engine events to every subscriber without blocking.
func (e *Engine) fanout(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			e.subMu.Lock()
			for _, ch := range e.subs {
				select {
				case ch <- ev:
				default:
				}
			}
			e.subMu.Unlock()
		}
	}
}

// handleFrame scores motion on the frame and applies motion-driven
// transitions, then the time-driven ones.
func (e *Engine) handleFrame(ctx context.Context, f capture.Frame) {
	score := e.det.Score(f.Image)
	moving := e.det.Moving(score)
	now := e.clock()

	e.mu.Lock()
	e.frames++
	e.lastFrame = f.Image
	e.lastFrameSeq = f.Seq
	e.lastFrameAt = f.At
	if e.lastFrameAt.IsZero() {
		e.lastFrameAt = now
	}
	e.lastScore = score

	var evs []Event
	switch e.state {
	case StateMoving:
		if moving {
			e.lastMotion = now
		}

	case StateSteady:
		// One steady event feeds at most one analysis; once latched the
		// scene must move again before another capture.
		if moving && !e.latched {
			e.state = StateMoving
			e.lastMotion = now
			evs = append(evs, e.stateEventLocked(now))
		}

	case StateFeedback:
		// Non-correct verdicts hold until the builder moves something.
		if moving && e.verdict != nil && e.verdict.Status != verify.StatusCorrect {
			e.state = StateMoving
			e.lastMotion = now
			evs = append(evs, e.stateEventLocked(now))
		}
	}

	evs = append(evs, e.advanceLocked(ctx, now)...)
	e.mu.Unlock()
	e.publish(evs...)
}

// advanceLocked applies at most one time-driven transition.
func (e *Engine) advanceLocked(ctx context.Context, now time.Time) []Event {
	switch e.state {
	case StateMoving:
		if now.Sub(e.lastMotion) >= e.cfg.Stillness {
			e.state = StateSteady
			e.latched = false
			logging.WatchDebug("scene steady after %s", e.cfg.Stillness)
			return []Event{e.stateEventLocked(now)}
		}

	case StateSteady:
		return e.maybeFireLocked(ctx, now)

	case StateFeedback:
		if e.verdict != nil && e.verdict.Status == verify.StatusCorrect &&
			now.Sub(e.feedbackAt) >= e.cfg.AdvanceDwell {
			logging.Watch("step %d verified, advancing", e.verdictStepIDLocked())
			return e.advanceStepLocked(ReasonVerified)
		}
	}
	return nil
}

func (e *Engine) verdictStepIDLocked() int {
	if e.stepIdx < e.cfg.Plan.Len() {
		return e.cfg.Plan.Step(e.stepIdx).ID
	}
	return 0
}

// maybeFireLocked launches one analysis for the current steady event when
// the latch, the cooldown, and the quota all permit it.
func (e *Engine) maybeFireLocked(ctx context.Context, now time.Time) []Event {
	if e.quotaLocked || e.latched {
		return nil
	}
	if !e.lastCall.IsZero() && now.Sub(e.lastCall) < e.cfg.Cooldown {
		return nil
	}
	if e.lastFrame == nil {
		return nil
	}
	if e.stepIdx >= e.cfg.Plan.Len() {
		e.state = StateDone
		return []Event{
			{Kind: EventDone, At: now, State: StateDone, StepIndex: e.stepIdx},
			e.stateEventLocked(now),
		}
	}

	e.latched = true

	if e.cfg.Tracker != nil {
		if err := e.cfg.Tracker.Allow(); err != nil {
			logging.WatchWarn("analysis blocked: %v", err)
			e.quotaLocked = true
			e.verdict = &verify.Verdict{Status: verify.StatusError, Feedback: quotaFeedback}
			e.state = StateFeedback
			e.feedbackAt = now
			return []Event{
				{Kind: EventQuota, At: now, State: e.state, StepIndex: e.stepIdx, Reason: ReasonBudget},
				e.verdictEventLocked(now),
				e.stateEventLocked(now),
			}
		}
	}

	step := e.cfg.Plan.Step(e.stepIdx)
	img := e.lastFrame
	seq := e.lastFrameSeq
	e.lastCall = now
	e.state = StateAnalyzing
	e.analyses++
	logging.Watch("steady captured, analyzing step %d (frame %d)", step.ID, seq)

	e.group.Go(func() error {
		e.runAnalysis(ctx, img, step, seq)
		return nil
	})

	return []Event{
		{
			Kind:      EventSnapshot,
			At:        now,
			State:     StateAnalyzing,
			StepIndex: e.stepIdx,
			Step:      step,
			Frame:     img,
			FrameSeq:  seq,
		},
		e.stateEventLocked(now),
	}
}

func (e *Engine) runAnalysis(ctx context.Context, img image.Image, step plan.Step, seq uint64) {
	timer := logging.StartTimer(logging.CategoryWatch, "analyze")
	v, err := e.cfg.Analyzer.Analyze(ctx, img, step)
	timer.Stop()

	select {
	case e.results <- analysisResult{verdict: v, err: err, step: step, seq: seq}:
	case <-ctx.Done():
	}
}

// finishAnalysis turns an analyzer result into the visible verdict.
func (e *Engine) finishAnalysis(ctx context.Context, res analysisResult) {
	now := e.clock()
	e.mu.Lock()
	var evs []Event

	switch {
	case res.err != nil && (errors.Is(res.err, verify.ErrQuotaExhausted) || errors.Is(res.err, usage.ErrQuotaExhausted)):
		logging.WatchWarn("provider quota exhausted, locking analysis: %v", res.err)
		e.quotaLocked = true
		e.verdict = &verify.Verdict{Status: verify.StatusError, Feedback: quotaFeedback}
		evs = append(evs, Event{Kind: EventQuota, At: now, State: e.state, StepIndex: e.stepIdx, Reason: ReasonProvider})

	case res.err != nil:
		logging.WatchError("analysis failed for step %d: %v", res.step.ID, res.err)
		e.verdict = &verify.Verdict{
			Status:   verify.StatusError,
			Feedback: fmt.Sprintf("Verifier error: %v", res.err),
		}

	default:
		v := res.verdict
		e.verdict = &v
		logging.Watch("verdict for step %d: %s (%.2f) cached=%v",
			res.step.ID, v.Status, v.Confidence, v.Cached)
		if e.cfg.Tracker != nil && !v.Cached {
			e.cfg.Tracker.Track(ctx, e.cfg.Analyzer.Name(), v.Model, v.PromptTokens, v.OutputTokens)
		}
	}

	e.state = StateFeedback
	e.feedbackAt = now
	evs = append(evs, e.verdictEventLocked(now), e.stateEventLocked(now))
	e.mu.Unlock()
	e.publish(evs...)
}
