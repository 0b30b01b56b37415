// Audit logging: an append-only JSONL trail of session events, enough to
// reconstruct what the engine did without opening the session database.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event.
type AuditEventType string

const (
	AuditSessionStart AuditEventType = "session_start"
	AuditSessionEnd   AuditEventType = "session_end"
	AuditStateChange  AuditEventType = "state_change"
	AuditVerdict      AuditEventType = "verdict"
	AuditStepAdvance  AuditEventType = "step_advance"
	AuditSnapshot     AuditEventType = "snapshot"
	AuditQuotaLock    AuditEventType = "quota_lock"
	AuditReset        AuditEventType = "reset"
)

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	Timestamp int64                  `json:"ts"` // Unix milliseconds
	Type      AuditEventType         `json:"type"`
	Session   string                 `json:"session,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditMu     sync.Mutex
	auditFile   *os.File
	auditEncode *json.Encoder
)

// InitAudit opens the audit trail file. A no-op when logging is disabled.
func InitAudit() error {
	if !IsEnabled() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	stateMu.RLock()
	dir := opts.Dir
	stateMu.RUnlock()

	path := filepath.Join(dir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	auditFile = f
	auditEncode = json.NewEncoder(f)
	return nil
}

// Audit records one event. Safe to call without InitAudit; it is then a
// no-op.
func Audit(eventType AuditEventType, session string, fields map[string]interface{}) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditEncode == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now().UnixMilli(),
		Type:      eventType,
		Session:   session,
		Fields:    fields,
	}
	if err := auditEncode.Encode(event); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: audit write failed: %v\n", err)
	}
}

// CloseAudit flushes and closes the audit trail.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
		auditEncode = nil
	}
}
