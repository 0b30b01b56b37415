package bridge

import (
	"time"

	"sparkeye/internal/plan"
	"sparkeye/internal/verify"
	"sparkeye/internal/watch"
)

// wireStep is the step shape clients see.
type wireStep struct {
	ID          int    `json:"id"`
	Instruction string `json:"instruction"`
	Expected    string `json:"expected,omitempty"`
}

// wireEvent is one engine event on the SSE stream. Frames never travel
// here.
type wireEvent struct {
	Kind        string          `json:"kind"`
	At          time.Time       `json:"at"`
	State       string          `json:"state,omitempty"`
	StepIndex   int             `json:"step_index"`
	Step        *wireStep       `json:"step,omitempty"`
	Verdict     *verify.Verdict `json:"verdict,omitempty"`
	Score       int             `json:"score,omitempty"`
	StillnessMS int64           `json:"stillness_ms,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	FrameSeq    uint64          `json:"frame_seq,omitempty"`
}

// wireStatus is the /status.json document and the replayed first SSE
// event. It adds the fields Status keeps out of its own JSON form.
type wireStatus struct {
	watch.Status
	Step              *wireStep `json:"step,omitempty"`
	StillnessMS       int64     `json:"stillness_ms"`
	StillnessTargetMS int64     `json:"stillness_target_ms"`
	CooldownMS        int64     `json:"cooldown_ms"`
}

func stepPayload(s plan.Step) *wireStep {
	if s.ID == 0 {
		return nil
	}
	return &wireStep{ID: s.ID, Instruction: s.Instruction, Expected: s.Expected}
}

func eventPayload(ev watch.Event) wireEvent {
	return wireEvent{
		Kind:        string(ev.Kind),
		At:          ev.At,
		State:       string(ev.State),
		StepIndex:   ev.StepIndex,
		Step:        stepPayload(ev.Step),
		Verdict:     ev.Verdict,
		Score:       ev.Score,
		StillnessMS: ev.Stillness.Milliseconds(),
		Reason:      ev.Reason,
		FrameSeq:    ev.FrameSeq,
	}
}

func statusPayload(st watch.Status) wireStatus {
	return wireStatus{
		Status:            st,
		Step:              stepPayload(st.Step),
		StillnessMS:       st.Stillness.Milliseconds(),
		StillnessTargetMS: st.StillnessTarget.Milliseconds(),
		CooldownMS:        st.Cooldown.Milliseconds(),
	}
}
