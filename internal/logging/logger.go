// Package logging provides config-driven categorized file logging for
// sparkeye. Each category writes its own file under the workspace logs
// directory; when logging is disabled every call is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config, shutdown
	CategoryCapture Category = "capture" // Frame sources
	CategoryMotion  Category = "motion"  // Motion scoring
	CategoryWatch   Category = "watch"   // State machine transitions
	CategoryVision  Category = "vision"  // Verifier API calls
	CategoryStore   Category = "store"   // Session persistence
	CategoryUsage   Category = "usage"   // Call ledger and budget
	CategoryBridge  Category = "bridge"  // Overlay event stream
	CategoryUI      Category = "ui"      // Terminal UI
)

// Options controls initialization. The zero value disables all logging.
type Options struct {
	Dir        string          // Directory for per-category log files
	Level      string          // debug, info, warn, error (default info)
	Enabled    bool            // Master switch
	Categories map[string]bool // Per-category enablement; empty enables all
}

var (
	stateMu sync.RWMutex
	opts    Options
	level   zapcore.Level = zapcore.InfoLevel

	loggersMu sync.Mutex
	loggers   = make(map[Category]*Logger)
)

// Logger writes to one category file. A Logger without a backing core is
// a no-op, so call sites never need nil checks.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	file     *os.File
}

// Initialize configures the logging system. Call once at startup, before
// the first Get; until then every logger is a no-op.
func Initialize(o Options) error {
	stateMu.Lock()
	defer stateMu.Unlock()

	lvl := zapcore.InfoLevel
	if o.Level != "" {
		parsed, err := zapcore.ParseLevel(o.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", o.Level, err)
		}
		lvl = parsed
	}

	if o.Enabled {
		if o.Dir == "" {
			return fmt.Errorf("log directory required")
		}
		if err := os.MkdirAll(o.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
	}

	opts = o
	level = lvl
	return nil
}

// IsEnabled returns whether logging is active at all.
func IsEnabled() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return opts.Enabled
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	stateMu.RLock()
	defer stateMu.RUnlock()

	if !opts.Enabled {
		return false
	}
	if len(opts.Categories) == 0 {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		// Enable by default when not listed
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger when logging or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	stateMu.RLock()
	dir := opts.Dir
	lvl := level
	stateMu.RUnlock()

	logPath := filepath.Join(dir, fmt.Sprintf("%s.log", category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(file), lvl)

	l := &Logger{
		category: category,
		sugar:    zap.New(core).Sugar().Named(string(category)),
		file:     file,
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// CloseAll flushes and closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.sugar != nil {
			_ = l.sugar.Sync()
		}
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// reset restores pristine state between tests.
func reset() {
	CloseAll()
	stateMu.Lock()
	opts = Options{}
	level = zapcore.InfoLevel
	stateMu.Unlock()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Capture logs to the capture category
func Capture(format string, args ...interface{}) {
	Get(CategoryCapture).Info(format, args...)
}

// CaptureDebug logs debug to the capture category
func CaptureDebug(format string, args ...interface{}) {
	Get(CategoryCapture).Debug(format, args...)
}

// CaptureWarn logs warning to the capture category
func CaptureWarn(format string, args ...interface{}) {
	Get(CategoryCapture).Warn(format, args...)
}

// CaptureError logs error to the capture category
func CaptureError(format string, args ...interface{}) {
	Get(CategoryCapture).Error(format, args...)
}

// Motion logs to the motion category
func Motion(format string, args ...interface{}) {
	Get(CategoryMotion).Info(format, args...)
}

// MotionDebug logs debug to the motion category
func MotionDebug(format string, args ...interface{}) {
	Get(CategoryMotion).Debug(format, args...)
}

// Watch logs to the watch category
func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Info(format, args...)
}

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) {
	Get(CategoryWatch).Debug(format, args...)
}

// WatchWarn logs warning to the watch category
func WatchWarn(format string, args ...interface{}) {
	Get(CategoryWatch).Warn(format, args...)
}

// WatchError logs error to the watch category
func WatchError(format string, args ...interface{}) {
	Get(CategoryWatch).Error(format, args...)
}

// Vision logs to the vision category
func Vision(format string, args ...interface{}) {
	Get(CategoryVision).Info(format, args...)
}

// VisionDebug logs debug to the vision category
func VisionDebug(format string, args ...interface{}) {
	Get(CategoryVision).Debug(format, args...)
}

// VisionWarn logs warning to the vision category
func VisionWarn(format string, args ...interface{}) {
	Get(CategoryVision).Warn(format, args...)
}

// VisionError logs error to the vision category
func VisionError(format string, args ...interface{}) {
	Get(CategoryVision).Error(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Usage logs to the usage category
func Usage(format string, args ...interface{}) {
	Get(CategoryUsage).Info(format, args...)
}

// UsageDebug logs debug to the usage category
func UsageDebug(format string, args ...interface{}) {
	Get(CategoryUsage).Debug(format, args...)
}

// Bridge logs to the bridge category
func Bridge(format string, args ...interface{}) {
	Get(CategoryBridge).Info(format, args...)
}

// BridgeDebug logs debug to the bridge category
func BridgeDebug(format string, args ...interface{}) {
	Get(CategoryBridge).Debug(format, args...)
}

// BridgeError logs error to the bridge category
func BridgeError(format string, args ...interface{}) {
	Get(CategoryBridge).Error(format, args...)
}

// UI logs to the ui category
func UI(format string, args ...interface{}) {
	Get(CategoryUI).Info(format, args...)
}

// UIDebug logs debug to the ui category
func UIDebug(format string, args ...interface{}) {
	Get(CategoryUI).Debug(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
