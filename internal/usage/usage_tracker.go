package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sparkeye/internal/logging"
)

// ErrQuotaExhausted is returned by Allow when the daily analysis budget
// is spent. Callers treat it the same as a provider-side quota lock.
var ErrQuotaExhausted = errors.New("daily analysis budget exhausted")

const dayFormat = "2006-01-02"

type contextKey struct{}
type planKey struct{}
type sessionKey struct{}

// Tracker manages analysis call recording and persistence.
type Tracker struct {
	mu       sync.Mutex
	data     Ledger
	filePath string
	budget   int
	dirty    bool
	now      func() time.Time
}

// NewTracker creates a tracker persisting under the given state directory.
// dailyBudget caps analysis calls per day; 0 means unlimited.
func NewTracker(stateDir string, dailyBudget int) (*Tracker, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(stateDir, "usage.json"),
		budget:   dailyBudget,
		now:      time.Now,
		data: Ledger{
			Version:    "1.0",
			ByDay:      make(map[string]Counts),
			ByProvider: make(map[string]Counts),
			ByModel:    make(map[string]Counts),
			ByPlan:     make(map[string]Counts),
		},
	}

	if err := t.Load(); err != nil {
		logging.UsageDebug("usage ledger unreadable, starting fresh: %v", err)
	}

	return t, nil
}

// Load reads the ledger from disk. A missing file is not an error.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}

	// Ensure maps are initialized if file was empty/partial
	if t.data.ByDay == nil {
		t.data.ByDay = make(map[string]Counts)
	}
	if t.data.ByProvider == nil {
		t.data.ByProvider = make(map[string]Counts)
	}
	if t.data.ByModel == nil {
		t.data.ByModel = make(map[string]Counts)
	}
	if t.data.ByPlan == nil {
		t.data.ByPlan = make(map[string]Counts)
	}

	return nil
}

// Save writes the ledger to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0644)
}

// Track records one analysis call against every aggregation dimension.
func (t *Tracker) Track(ctx context.Context, provider, model string, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	planName := "unknown"
	if val := ctx.Value(planKey{}); val != nil {
		planName = val.(string)
	}

	day := t.now().Format(dayFormat)

	t.data.Total.Add(input, output)
	addToMap(t.data.ByDay, day, input, output)
	addToMap(t.data.ByProvider, provider, input, output)
	addToMap(t.data.ByModel, model, input, output)
	addToMap(t.data.ByPlan, planName, input, output)

	logging.UsageDebug("tracked call provider=%s model=%s in=%d out=%d day=%s",
		provider, model, input, output, day)

	// Debounced auto-save
	if !t.dirty {
		t.dirty = true
		time.AfterFunc(5*time.Second, func() {
			t.Save()
			t.mu.Lock()
			t.dirty = false
			t.mu.Unlock()
		})
	}
}

// Allow reports whether another analysis call fits today's budget.
func (t *Tracker) Allow() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.budget <= 0 {
		return nil
	}
	day := t.now().Format(dayFormat)
	if used := t.data.ByDay[day].Calls; used >= int64(t.budget) {
		return fmt.Errorf("%d of %d calls used: %w", used, t.budget, ErrQuotaExhausted)
	}
	return nil
}

// Remaining returns the calls left today, or -1 when unlimited.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.budget <= 0 {
		return -1
	}
	day := t.now().Format(dayFormat)
	rem := t.budget - int(t.data.ByDay[day].Calls)
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Today returns today's counts.
func (t *Tracker) Today() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.ByDay[t.now().Format(dayFormat)]
}

// Snapshot returns a copy of the full ledger.
func (t *Tracker) Snapshot() Ledger {
	t.mu.Lock()
	defer t.mu.Unlock()
	data := t.data
	data.ByDay = copyCountsMap(data.ByDay)
	data.ByProvider = copyCountsMap(data.ByProvider)
	data.ByModel = copyCountsMap(data.ByModel)
	data.ByPlan = copyCountsMap(data.ByPlan)
	return data
}

func copyCountsMap(src map[string]Counts) map[string]Counts {
	if src == nil {
		return nil
	}
	dst := make(map[string]Counts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]Counts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// Context Helpers

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context, or nil.
func FromContext(ctx context.Context) *Tracker {
	val := ctx.Value(contextKey{})
	if val == nil {
		return nil
	}
	return val.(*Tracker)
}

// WithSession tags the context with the plan and session being verified.
func WithSession(ctx context.Context, planName, sessionID string) context.Context {
	ctx = context.WithValue(ctx, planKey{}, planName)
	ctx = context.WithValue(ctx, sessionKey{}, sessionID)
	return ctx
}

// SessionFromContext returns the session ID set by WithSession, or "".
func SessionFromContext(ctx context.Context) string {
	if val := ctx.Value(sessionKey{}); val != nil {
		return val.(string)
	}
	return ""
}
