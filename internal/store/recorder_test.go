package store

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sparkeye/internal/plan"
	"sparkeye/internal/verify"
	"sparkeye/internal/watch"
)

func recorderFrame() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.NRGBA{R: 120, G: 90, B: 60, A: 255})
		}
	}
	return img
}

func TestRecorderPersistsSession(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	sessionID, err := s.CreateSession("uno-blink", "static", "simulated")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	snapRoot := t.TempDir()
	rec := NewRecorder(s, sessionID, snapRoot)

	events := make(chan watch.Event, 16)
	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { done <- rec.Run(ctx, events) }()

	step := plan.Step{ID: 3, Instruction: "Seat the LED", Expected: "LED in row 10"}
	events <- watch.Event{
		Kind:     watch.EventSnapshot,
		Step:     step,
		Frame:    recorderFrame(),
		FrameSeq: 7,
	}
	events <- watch.Event{
		Kind: watch.EventVerdict,
		Step: step,
		Verdict: &verify.Verdict{
			Status:     verify.StatusIncorrect,
			Confidence: 0.8,
			Feedback:   "LED is in row 9, move it down one.",
			Model:      "simulated",
			Latency:    80 * time.Millisecond,
		},
	}
	events <- watch.Event{
		Kind:      watch.EventStep,
		Step:      step,
		StepIndex: 0,
		Reason:    watch.ReasonVerified,
	}
	events <- watch.Event{Kind: watch.EventDone}
	close(events)

	if err := <-done; err != nil {
		t.Fatalf("Recorder.Run failed: %v", err)
	}

	attempts, err := s.RecentAttempts(sessionID, 10)
	if err != nil {
		t.Fatalf("RecentAttempts failed: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(attempts))
	}
	a := attempts[0]
	if a.StepID != 3 || a.Status != "incorrect" {
		t.Errorf("Unexpected attempt row: %+v", a)
	}
	if a.FrameSeq != 7 {
		t.Errorf("Expected frame seq 7, got %d", a.FrameSeq)
	}
	if a.FrameHash == "" {
		t.Error("Expected a frame hash on the attempt")
	}

	wantSnap := filepath.Join(snapRoot, sessionID, "step-3-7.jpg")
	if a.SnapshotPath != wantSnap {
		t.Errorf("Expected snapshot path %s, got %s", wantSnap, a.SnapshotPath)
	}
	if _, err := os.Stat(wantSnap); err != nil {
		t.Errorf("Snapshot file missing: %v", err)
	}

	sum, err := s.SessionSummary(sessionID)
	if err != nil {
		t.Fatalf("SessionSummary failed: %v", err)
	}
	if sum == nil || !sum.Completed {
		t.Fatalf("Expected completed session, got %+v", sum)
	}
	if sum.Steps != 1 || sum.LastStep != 1 {
		t.Errorf("Unexpected step bookkeeping: %+v", sum)
	}
}

func TestRecorderClearsPendingSnapshot(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	sessionID, err := s.CreateSession("uno-blink", "static", "simulated")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	rec := NewRecorder(s, sessionID, t.TempDir())
	step := plan.Step{ID: 1, Instruction: "Place resistor", Expected: "Resistor bridging rows 5 and 10"}

	rec.handle(watch.Event{Kind: watch.EventSnapshot, Step: step, Frame: recorderFrame(), FrameSeq: 1})
	rec.handle(watch.Event{Kind: watch.EventVerdict, Step: step, Verdict: &verify.Verdict{
		Status: verify.StatusCorrect, Confidence: 0.95, Feedback: "Looks right.",
	}})
	// A cached verdict can arrive with no fresh snapshot before it.
	rec.handle(watch.Event{Kind: watch.EventVerdict, Step: step, Verdict: &verify.Verdict{
		Status: verify.StatusCorrect, Confidence: 0.95, Feedback: "Looks right.", Cached: true,
	}})

	attempts, err := s.RecentAttempts(sessionID, 10)
	if err != nil {
		t.Fatalf("RecentAttempts failed: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].SnapshotPath != "" || attempts[0].FrameSeq != 0 {
		t.Errorf("Cached attempt should carry no snapshot, got %+v", attempts[0])
	}
	if attempts[1].SnapshotPath == "" {
		t.Errorf("First attempt should carry the snapshot, got %+v", attempts[1])
	}
}
