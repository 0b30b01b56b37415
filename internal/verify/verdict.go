// Package verify sends captured frames to a vision model and turns the
// model's answer into step verdicts.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"regexp"
	"strings"
	"time"

	"sparkeye/internal/plan"
)

// Status classifies how well a frame matches a step's expected outcome.
type Status string

const (
	StatusCorrect   Status = "correct"
	StatusPartial   Status = "partial"
	StatusIncorrect Status = "incorrect"
	StatusError     Status = "error"
)

// Verdict is one verifier decision about one frame.
type Verdict struct {
	Status     Status        `json:"status"`
	Confidence float64       `json:"confidence"`
	Feedback   string        `json:"feedback"`
	Model      string        `json:"model,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
	Latency    time.Duration `json:"latency,omitempty"`

	// Token usage reported by the provider, for the call ledger.
	PromptTokens int `json:"-"`
	OutputTokens int `json:"-"`
}

// ErrQuotaExhausted reports that the provider refused the call because
// the API quota is spent, or that the local daily budget is. Once the
// engine sees this error it stops calling the verifier for the rest of
// the session.
var ErrQuotaExhausted = errors.New("verifier quota exhausted")

// Analyzer checks one frame against one assembly step.
type Analyzer interface {
	// Analyze returns a verdict for img against step. Quota errors are
	// reported as ErrQuotaExhausted, possibly wrapped.
	Analyze(ctx context.Context, img image.Image, step plan.Step) (Verdict, error)
	// Name identifies the provider for display and logging.
	Name() string
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseVerdict extracts a verdict from raw model text. Models sometimes
// wrap the JSON in prose or code fences, so the first brace-to-last-brace
// span is decoded. Malformed JSON degrades to a partial verdict rather
// than an error so the builder can simply retry; text with no JSON object
// at all yields an error verdict.
func ParseVerdict(text string) Verdict {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return Verdict{
			Status:   StatusError,
			Feedback: "Invalid verifier response format.",
		}
	}

	var raw struct {
		Status     string  `json:"status"`
		Confidence float64 `json:"confidence"`
		Feedback   string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return Verdict{
			Status:     StatusPartial,
			Confidence: 0,
			Feedback:   "Could not understand the verifier response. Try again.",
		}
	}

	return Verdict{
		Status:     normalizeStatus(raw.Status),
		Confidence: clamp01(raw.Confidence),
		Feedback:   strings.TrimSpace(raw.Feedback),
	}
}

func normalizeStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusCorrect:
		return StatusCorrect
	case StatusPartial:
		return StatusPartial
	case StatusIncorrect:
		return StatusIncorrect
	default:
		return StatusError
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// snippet shortens s for log lines.
func snippet(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
