package verify

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"sparkeye/internal/plan"
)

// countingAnalyzer returns a fixed verdict and counts calls.
type countingAnalyzer struct {
	calls   int32
	verdict Verdict
}

func (a *countingAnalyzer) Analyze(context.Context, image.Image, plan.Step) (Verdict, error) {
	atomic.AddInt32(&a.calls, 1)
	return a.verdict, nil
}

func (a *countingAnalyzer) Name() string { return "counting" }

// halfFrame returns a frame split into a bright and a dark half; flipped
// controls which side is bright, producing maximally distant hashes.
func halfFrame(flipped bool) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			bright := x < 32
			if flipped {
				bright = !bright
			}
			if bright {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestCacheServesRepeatScene(t *testing.T) {
	inner := &countingAnalyzer{verdict: Verdict{Status: StatusCorrect, Confidence: 0.9, Feedback: "ok"}}
	c := NewCachedAnalyzer(inner, time.Minute, 5)
	step := testStep()
	frame := halfFrame(false)

	first, err := c.Analyze(context.Background(), frame, step)
	if err != nil {
		t.Fatalf("first Analyze failed: %v", err)
	}
	if first.Cached {
		t.Error("first verdict must not be cached")
	}

	second, err := c.Analyze(context.Background(), frame, step)
	if err != nil {
		t.Fatalf("second Analyze failed: %v", err)
	}
	if !second.Cached {
		t.Error("repeat scene should serve from cache")
	}
	if second.Status != StatusCorrect {
		t.Errorf("cached verdict changed: %s", second.Status)
	}
	if n := atomic.LoadInt32(&inner.calls); n != 1 {
		t.Errorf("inner analyzer should be called once, got %d", n)
	}
}

func TestCacheMissOnDifferentScene(t *testing.T) {
	inner := &countingAnalyzer{verdict: Verdict{Status: StatusCorrect}}
	c := NewCachedAnalyzer(inner, time.Minute, 5)
	step := testStep()

	c.Analyze(context.Background(), halfFrame(false), step)
	c.Analyze(context.Background(), halfFrame(true), step)

	if n := atomic.LoadInt32(&inner.calls); n != 2 {
		t.Errorf("distinct scenes should both hit the provider, got %d calls", n)
	}
}

func TestCacheKeyedByStep(t *testing.T) {
	inner := &countingAnalyzer{verdict: Verdict{Status: StatusCorrect}}
	c := NewCachedAnalyzer(inner, time.Minute, 5)
	frame := halfFrame(false)

	c.Analyze(context.Background(), frame, plan.Step{ID: 1, Instruction: "a", Expected: "a"})
	c.Analyze(context.Background(), frame, plan.Step{ID: 2, Instruction: "b", Expected: "b"})

	if n := atomic.LoadInt32(&inner.calls); n != 2 {
		t.Errorf("same scene on a new step must not reuse the verdict, got %d calls", n)
	}
}

func TestCacheSkipsErrorVerdicts(t *testing.T) {
	inner := &countingAnalyzer{verdict: Verdict{Status: StatusError, Feedback: "Invalid verifier response format."}}
	c := NewCachedAnalyzer(inner, time.Minute, 5)
	step := testStep()
	frame := halfFrame(false)

	c.Analyze(context.Background(), frame, step)
	v, _ := c.Analyze(context.Background(), frame, step)

	if v.Cached {
		t.Error("error verdicts must not be cached")
	}
	if n := atomic.LoadInt32(&inner.calls); n != 2 {
		t.Errorf("expected 2 provider calls, got %d", n)
	}
}

func TestCacheFlush(t *testing.T) {
	inner := &countingAnalyzer{verdict: Verdict{Status: StatusCorrect}}
	c := NewCachedAnalyzer(inner, time.Minute, 5)
	step := testStep()
	frame := halfFrame(false)

	c.Analyze(context.Background(), frame, step)
	if c.Size() != 1 {
		t.Fatalf("expected 1 cache entry, got %d", c.Size())
	}
	c.Flush()
	if c.Size() != 0 {
		t.Fatalf("expected empty cache after Flush, got %d", c.Size())
	}

	c.Analyze(context.Background(), frame, step)
	if n := atomic.LoadInt32(&inner.calls); n != 2 {
		t.Errorf("flushed scene should hit the provider again, got %d calls", n)
	}
}
