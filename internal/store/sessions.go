package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sparkeye/internal/logging"
)

// Session is one watch run against one plan.
type Session struct {
	ID        string
	Plan      string
	Source    string
	Provider  string
	StartedAt time.Time
	EndedAt   *time.Time
	Completed bool
	// LastStep is the number of steps completed so far; a resumed
	// session starts at this index.
	LastStep int
}

// Attempt is one verifier decision recorded for a session.
type Attempt struct {
	ID           int64
	SessionID    string
	StepID       int
	Status       string
	Confidence   float64
	Feedback     string
	Model        string
	Cached       bool
	LatencyMS    int64
	FrameSeq     int64
	FrameHash    string
	SnapshotPath string
	CreatedAt    time.Time
}

// Summary is a session with its attempt counts, for history listings.
type Summary struct {
	Session
	Attempts int
	Correct  int
	Steps    int
}

// CreateSession inserts a new open session and returns its id.
func (s *Store) CreateSession(planName, source, provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	logging.StoreDebug("CreateSession: plan=%s source=%s provider=%s id=%s", planName, source, provider, id)
	_, err := s.db.Exec(
		"INSERT INTO sessions (id, plan, source, provider) VALUES (?, ?, ?, ?)",
		id, planName, source, provider,
	)
	if err != nil {
		logging.StoreError("Failed to create session: %v", err)
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// RecordAttempt inserts one verifier attempt row.
func (s *Store) RecordAttempt(a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("RecordAttempt: session=%s step=%d status=%s cached=%v", a.SessionID, a.StepID, a.Status, a.Cached)
	_, err := s.db.Exec(
		`INSERT INTO attempts (session_id, step_id, status, confidence, feedback, model, cached, latency_ms, frame_seq, frame_hash, snapshot_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.StepID, a.Status, a.Confidence, a.Feedback, a.Model,
		boolToInt(a.Cached), a.LatencyMS, a.FrameSeq, a.FrameHash, a.SnapshotPath,
	)
	if err != nil {
		logging.StoreError("Failed to record attempt: %v", err)
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// RecordStepDone marks stepID finished for the session and moves the
// resume pointer to lastStep. Re-recording the same step replaces the
// earlier outcome.
func (s *Store) RecordStepDone(sessionID string, stepID int, outcome string, lastStep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("RecordStepDone: session=%s step=%d outcome=%s last=%d", sessionID, stepID, outcome, lastStep)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO step_events (session_id, step_id, outcome) VALUES (?, ?, ?)",
		sessionID, stepID, outcome,
	)
	if err != nil {
		logging.StoreError("Failed to record step completion: %v", err)
		return fmt.Errorf("failed to record step completion: %w", err)
	}
	_, err = s.db.Exec("UPDATE sessions SET last_step = ? WHERE id = ?", lastStep, sessionID)
	if err != nil {
		logging.StoreError("Failed to update session resume point: %v", err)
		return fmt.Errorf("failed to update session resume point: %w", err)
	}
	return nil
}

// FinishSession closes the session; completed records whether the whole
// plan was verified.
func (s *Store) FinishSession(sessionID string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("FinishSession: session=%s completed=%v", sessionID, completed)
	_, err := s.db.Exec(
		"UPDATE sessions SET ended_at = CURRENT_TIMESTAMP, completed = ? WHERE id = ?",
		boolToInt(completed), sessionID,
	)
	if err != nil {
		logging.StoreError("Failed to finish session: %v", err)
		return fmt.Errorf("failed to finish session: %w", err)
	}
	return nil
}

// LastOpenSession returns the most recent unfinished session for the
// plan, or nil when there is none.
func (s *Store) LastOpenSession(planName string) (*Session, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LastOpenSession")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, plan, source, provider, started_at, ended_at, completed, last_step
		 FROM sessions WHERE plan = ? AND ended_at IS NULL
		 ORDER BY rowid DESC LIMIT 1`,
		planName,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query open session: %w", err)
	}
	return sess, nil
}

// GetSession returns one session by id, or nil when unknown.
func (s *Store) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, plan, source, provider, started_at, ended_at, completed, last_step
		 FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return sess, nil
}

// RecentAttempts returns the newest attempts for a session, newest
// first.
func (s *Store) RecentAttempts(sessionID string, limit int) ([]Attempt, error) {
	timer := logging.StartTimer(logging.CategoryStore, "RecentAttempts")
	defer timer.Stop()

	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, step_id, status, confidence, feedback, model, cached, latency_ms, frame_seq, frame_hash, snapshot_path, created_at
		 FROM attempts WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var cached int
		var feedback, model, hash, snapshot sql.NullString
		if err := rows.Scan(&a.ID, &a.SessionID, &a.StepID, &a.Status, &a.Confidence,
			&feedback, &model, &cached, &a.LatencyMS, &a.FrameSeq, &hash, &snapshot, &a.CreatedAt); err != nil {
			logging.StoreDebug("Skipping unreadable attempt row: %v", err)
			continue
		}
		a.Cached = cached != 0
		a.Feedback = feedback.String
		a.Model = model.String
		a.FrameHash = hash.String
		a.SnapshotPath = snapshot.String
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// RecentSessions returns the newest sessions with attempt counts,
// newest first.
func (s *Store) RecentSessions(limit int) ([]Summary, error) {
	timer := logging.StartTimer(logging.CategoryStore, "RecentSessions")
	defer timer.Stop()

	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT s.id, s.plan, s.source, s.provider, s.started_at, s.ended_at, s.completed, s.last_step,
		        COUNT(a.id),
		        COALESCE(SUM(CASE WHEN a.status = 'correct' THEN 1 ELSE 0 END), 0),
		        (SELECT COUNT(*) FROM step_events e WHERE e.session_id = s.id)
		 FROM sessions s LEFT JOIN attempts a ON a.session_id = s.id
		 GROUP BY s.id ORDER BY s.rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var source, provider sql.NullString
		var ended sql.NullTime
		var completed int
		if err := rows.Scan(&sum.ID, &sum.Plan, &source, &provider, &sum.StartedAt, &ended,
			&completed, &sum.LastStep, &sum.Attempts, &sum.Correct, &sum.Steps); err != nil {
			logging.StoreDebug("Skipping unreadable session row: %v", err)
			continue
		}
		sum.Source = source.String
		sum.Provider = provider.String
		sum.Completed = completed != 0
		if ended.Valid {
			t := ended.Time
			sum.EndedAt = &t
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// SessionSummary returns one session with its attempt counts, or nil
// when unknown.
func (s *Store) SessionSummary(sessionID string) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT s.id, s.plan, s.source, s.provider, s.started_at, s.ended_at, s.completed, s.last_step,
		        COUNT(a.id),
		        COALESCE(SUM(CASE WHEN a.status = 'correct' THEN 1 ELSE 0 END), 0),
		        (SELECT COUNT(*) FROM step_events e WHERE e.session_id = s.id)
		 FROM sessions s LEFT JOIN attempts a ON a.session_id = s.id
		 WHERE s.id = ? GROUP BY s.id`,
		sessionID,
	)

	var sum Summary
	var source, provider sql.NullString
	var ended sql.NullTime
	var completed int
	err := row.Scan(&sum.ID, &sum.Plan, &source, &provider, &sum.StartedAt, &ended,
		&completed, &sum.LastStep, &sum.Attempts, &sum.Correct, &sum.Steps)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session summary: %w", err)
	}
	sum.Source = source.String
	sum.Provider = provider.String
	sum.Completed = completed != 0
	if ended.Valid {
		t := ended.Time
		sum.EndedAt = &t
	}
	return &sum, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var source, provider sql.NullString
	var ended sql.NullTime
	var completed int
	err := row.Scan(&sess.ID, &sess.Plan, &source, &provider, &sess.StartedAt, &ended, &completed, &sess.LastStep)
	if err != nil {
		return nil, err
	}
	sess.Source = source.String
	sess.Provider = provider.String
	sess.Completed = completed != 0
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
