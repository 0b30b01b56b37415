package verify

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	gocache "github.com/patrickmn/go-cache"

	"sparkeye/internal/logging"
	"sparkeye/internal/plan"
)

// CachedAnalyzer wraps an Analyzer with a perceptual-hash verdict cache.
// A scene that still looks like an already-judged frame reuses the stored
// verdict instead of spending another provider call. Entries are keyed by
// step, so advancing the plan never reuses a stale verdict.
type CachedAnalyzer struct {
	inner  Analyzer
	radius int
	cache  *gocache.Cache
}

var _ Analyzer = (*CachedAnalyzer)(nil)

type cacheEntry struct {
	hash    *goimagehash.ImageHash
	verdict Verdict
}

// NewCachedAnalyzer wraps inner. Verdicts stay reusable for ttl; radius
// is the maximum hamming distance between frame hashes that still counts
// as the same scene.
func NewCachedAnalyzer(inner Analyzer, ttl time.Duration, radius int) *CachedAnalyzer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if radius < 0 {
		radius = 0
	}
	return &CachedAnalyzer{
		inner:  inner,
		radius: radius,
		cache:  gocache.New(ttl, 5*time.Minute),
	}
}

// Name identifies the underlying provider.
func (c *CachedAnalyzer) Name() string {
	return c.inner.Name()
}

// Analyze serves a cached verdict when the frame hashes close to an
// already-judged frame for the same step, and otherwise delegates to the
// wrapped analyzer.
func (c *CachedAnalyzer) Analyze(ctx context.Context, img image.Image, step plan.Step) (Verdict, error) {
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		logging.VisionDebug("[Cache] hash failed, bypassing cache: %v", err)
		return c.inner.Analyze(ctx, img, step)
	}

	if v, ok := c.lookup(step.ID, h); ok {
		v.Cached = true
		logging.Vision("[Cache] Analyze: step=%d status=%s served from cache", step.ID, v.Status)
		return v, nil
	}

	v, err := c.inner.Analyze(ctx, img, step)
	if err != nil {
		return v, err
	}
	if v.Status != StatusError {
		key := fmt.Sprintf("%d:%016x", step.ID, h.GetHash())
		c.cache.Set(key, cacheEntry{hash: h, verdict: v}, gocache.DefaultExpiration)
	}
	return v, nil
}

// lookup scans live entries for the step and returns the first verdict
// whose frame hash is within the radius.
func (c *CachedAnalyzer) lookup(stepID int, h *goimagehash.ImageHash) (Verdict, bool) {
	prefix := strconv.Itoa(stepID) + ":"
	for key, item := range c.cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, ok := item.Object.(cacheEntry)
		if !ok {
			continue
		}
		if d, err := h.Distance(entry.hash); err == nil && d <= c.radius {
			return entry.verdict, true
		}
	}
	return Verdict{}, false
}

// Flush drops all cached verdicts.
func (c *CachedAnalyzer) Flush() {
	c.cache.Flush()
}

// Size returns the number of live cache entries.
func (c *CachedAnalyzer) Size() int {
	return c.cache.ItemCount()
}
