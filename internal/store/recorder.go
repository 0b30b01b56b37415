package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"

	"sparkeye/internal/logging"
	"sparkeye/internal/watch"
)

// Recorder drains one engine event stream into the store: attempt rows,
// step completions, snapshot JPEGs, and the audit trail.
type Recorder struct {
	store     *Store
	sessionID string
	snapDir   string

	// Snapshot details arrive before the verdict they belong to; the
	// pending fields hold them for the next attempt row.
	pendingPath string
	pendingHash string
	pendingSeq  int64
}

// NewRecorder builds a recorder for one session. Snapshots are written
// under snapshotRoot/<sessionID>/.
func NewRecorder(s *Store, sessionID, snapshotRoot string) *Recorder {
	return &Recorder{
		store:     s,
		sessionID: sessionID,
		snapDir:   filepath.Join(snapshotRoot, sessionID),
	}
}

// Run consumes events until the channel closes or ctx is cancelled.
// Persistence failures are logged, not fatal; the session keeps going.
func (r *Recorder) Run(ctx context.Context, events <-chan watch.Event) error {
	logging.Store("recorder attached to session %s", r.sessionID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.handle(ev)
		}
	}
}

func (r *Recorder) handle(ev watch.Event) {
	switch ev.Kind {
	case watch.EventSnapshot:
		r.saveSnapshot(ev)

	case watch.EventVerdict:
		if ev.Verdict == nil {
			return
		}
		v := ev.Verdict
		attempt := Attempt{
			SessionID:    r.sessionID,
			StepID:       ev.Step.ID,
			Status:       string(v.Status),
			Confidence:   v.Confidence,
			Feedback:     v.Feedback,
			Model:        v.Model,
			Cached:       v.Cached,
			LatencyMS:    v.Latency.Milliseconds(),
			FrameSeq:     r.pendingSeq,
			FrameHash:    r.pendingHash,
			SnapshotPath: r.pendingPath,
		}
		if err := r.store.RecordAttempt(attempt); err != nil {
			logging.StoreError("Recorder: attempt not persisted: %v", err)
		}
		r.pendingPath, r.pendingHash, r.pendingSeq = "", "", 0
		logging.Audit(logging.AuditVerdict, r.sessionID, map[string]interface{}{
			"step":       ev.Step.ID,
			"status":     string(v.Status),
			"confidence": v.Confidence,
			"cached":     v.Cached,
		})

	case watch.EventStep:
		if err := r.store.RecordStepDone(r.sessionID, ev.Step.ID, ev.Reason, ev.StepIndex+1); err != nil {
			logging.StoreError("Recorder: step completion not persisted: %v", err)
		}
		logging.Audit(logging.AuditStepAdvance, r.sessionID, map[string]interface{}{
			"step":    ev.Step.ID,
			"outcome": ev.Reason,
		})

	case watch.EventQuota:
		logging.Audit(logging.AuditQuotaLock, r.sessionID, map[string]interface{}{
			"reason": ev.Reason,
		})

	case watch.EventDone:
		if err := r.store.FinishSession(r.sessionID, true); err != nil {
			logging.StoreError("Recorder: session finish not persisted: %v", err)
		}
		logging.Audit(logging.AuditSessionEnd, r.sessionID, map[string]interface{}{
			"completed": true,
		})

	case watch.EventState:
		logging.Audit(logging.AuditStateChange, r.sessionID, map[string]interface{}{
			"state": string(ev.State),
		})
	}
}

func (r *Recorder) saveSnapshot(ev watch.Event) {
	if ev.Frame == nil {
		return
	}
	if err := os.MkdirAll(r.snapDir, 0755); err != nil {
		logging.StoreError("Recorder: snapshot dir not created: %v", err)
		return
	}

	path := filepath.Join(r.snapDir, fmt.Sprintf("step-%d-%d.jpg", ev.Step.ID, ev.FrameSeq))
	if err := imaging.Save(ev.Frame, path, imaging.JPEGQuality(85)); err != nil {
		logging.StoreError("Recorder: snapshot not saved: %v", err)
		return
	}

	r.pendingPath = path
	r.pendingSeq = int64(ev.FrameSeq)
	r.pendingHash = ""
	if h, err := goimagehash.AverageHash(ev.Frame); err == nil {
		r.pendingHash = fmt.Sprintf("%016x", h.GetHash())
	}

	logging.StoreDebug("Recorder: snapshot %s hash=%s", path, r.pendingHash)
	logging.Audit(logging.AuditSnapshot, r.sessionID, map[string]interface{}{
		"step": ev.Step.ID,
		"seq":  ev.FrameSeq,
		"path": path,
	})
}
