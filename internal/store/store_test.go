package store

import (
	"testing"
)

func TestStoreSessionLifecycle(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	id, err := s.CreateSession("uno-blink", "device:0", "gemini")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if id == "" {
		t.Fatal("CreateSession returned empty id")
	}

	open, err := s.LastOpenSession("uno-blink")
	if err != nil {
		t.Fatalf("LastOpenSession failed: %v", err)
	}
	if open == nil || open.ID != id {
		t.Fatalf("Expected open session %s, got %+v", id, open)
	}
	if open.LastStep != 0 {
		t.Errorf("Expected fresh session at step 0, got %d", open.LastStep)
	}

	err = s.RecordAttempt(Attempt{
		SessionID:    id,
		StepID:       1,
		Status:       "incorrect",
		Confidence:   0.85,
		Feedback:     "The resistor is in the wrong row.",
		Model:        "gemini-2.0-flash",
		LatencyMS:    1200,
		FrameSeq:     42,
		FrameHash:    "00000000ffffffff",
		SnapshotPath: "/tmp/step-1-42.jpg",
	})
	if err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	err = s.RecordAttempt(Attempt{
		SessionID:  id,
		StepID:     1,
		Status:     "correct",
		Confidence: 0.95,
		Feedback:   "Step looks complete.",
		Model:      "gemini-2.0-flash",
		Cached:     true,
	})
	if err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	attempts, err := s.RecentAttempts(id, 10)
	if err != nil {
		t.Fatalf("RecentAttempts failed: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}
	// Newest first.
	if attempts[0].Status != "correct" || !attempts[0].Cached {
		t.Errorf("Unexpected newest attempt: %+v", attempts[0])
	}
	if attempts[1].Status != "incorrect" || attempts[1].FrameHash != "00000000ffffffff" {
		t.Errorf("Unexpected oldest attempt: %+v", attempts[1])
	}

	if err := s.RecordStepDone(id, 1, "verified", 1); err != nil {
		t.Fatalf("RecordStepDone failed: %v", err)
	}
	// Re-recording the same step replaces, not duplicates.
	if err := s.RecordStepDone(id, 1, "skipped", 1); err != nil {
		t.Fatalf("RecordStepDone repeat failed: %v", err)
	}

	open, err = s.LastOpenSession("uno-blink")
	if err != nil {
		t.Fatalf("LastOpenSession failed: %v", err)
	}
	if open == nil || open.LastStep != 1 {
		t.Fatalf("Expected resume point 1, got %+v", open)
	}

	if err := s.FinishSession(id, true); err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}

	open, err = s.LastOpenSession("uno-blink")
	if err != nil {
		t.Fatalf("LastOpenSession failed: %v", err)
	}
	if open != nil {
		t.Errorf("Expected no open session after finish, got %+v", open)
	}

	sum, err := s.SessionSummary(id)
	if err != nil {
		t.Fatalf("SessionSummary failed: %v", err)
	}
	if sum == nil {
		t.Fatal("SessionSummary returned nil for known session")
	}
	if !sum.Completed {
		t.Error("Expected completed session")
	}
	if sum.EndedAt == nil {
		t.Error("Expected ended_at to be set")
	}
	if sum.Attempts != 2 || sum.Correct != 1 || sum.Steps != 1 {
		t.Errorf("Unexpected counts: attempts=%d correct=%d steps=%d", sum.Attempts, sum.Correct, sum.Steps)
	}
}

func TestStoreResumeFindsNewestOpen(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	first, err := s.CreateSession("uno-blink", "device:0", "gemini")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := s.CreateSession("uno-blink", "device:0", "gemini")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := s.CreateSession("other-plan", "device:0", "gemini"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	open, err := s.LastOpenSession("uno-blink")
	if err != nil {
		t.Fatalf("LastOpenSession failed: %v", err)
	}
	if open == nil || open.ID != second {
		t.Fatalf("Expected newest open session %s, got %+v", second, open)
	}

	if err := s.FinishSession(second, false); err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}
	open, err = s.LastOpenSession("uno-blink")
	if err != nil {
		t.Fatalf("LastOpenSession failed: %v", err)
	}
	if open == nil || open.ID != first {
		t.Fatalf("Expected older open session %s, got %+v", first, open)
	}
}

func TestStoreRecentSessions(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	a, _ := s.CreateSession("plan-a", "dir:/tmp/frames", "simulated")
	b, _ := s.CreateSession("plan-b", "device:0", "gemini")

	s.RecordAttempt(Attempt{SessionID: b, StepID: 1, Status: "correct", Confidence: 0.9})
	s.RecordAttempt(Attempt{SessionID: b, StepID: 2, Status: "incorrect", Confidence: 0.7})
	s.RecordStepDone(b, 1, "verified", 1)

	sums, err := s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sums))
	}
	if sums[0].ID != b {
		t.Errorf("Expected newest session first, got %s", sums[0].ID)
	}
	if sums[0].Attempts != 2 || sums[0].Correct != 1 || sums[0].Steps != 1 {
		t.Errorf("Unexpected counts for %s: %+v", b, sums[0])
	}
	if sums[1].ID != a || sums[1].Attempts != 0 {
		t.Errorf("Unexpected counts for %s: %+v", a, sums[1])
	}

	unknown, err := s.GetSession("not-a-session")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if unknown != nil {
		t.Errorf("Expected nil for unknown session, got %+v", unknown)
	}
}
