package verify

import (
	"context"
	"image"
	"time"

	"sparkeye/internal/plan"
)

// SimClient fakes verification when no API key is configured, so the
// whole capture loop stays usable offline. Every steady scene passes
// after a short think delay.
type SimClient struct {
	delay time.Duration
}

var _ Analyzer = (*SimClient)(nil)

// NewSimClient creates a simulated verifier. A non-positive delay uses
// the default two seconds.
func NewSimClient(delay time.Duration) *SimClient {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &SimClient{delay: delay}
}

// Name identifies the provider.
func (c *SimClient) Name() string {
	return string(ProviderSimulated)
}

// Analyze waits out the think delay and reports success.
func (c *SimClient) Analyze(ctx context.Context, _ image.Image, _ plan.Step) (Verdict, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	case <-time.After(c.delay):
	}
	return Verdict{
		Status:     StatusCorrect,
		Confidence: 1.0,
		Feedback:   "Simulated success (no API key configured).",
		Model:      "simulated",
		Latency:    time.Since(start),
	}, nil
}
