// Package motion scores scene change between consecutive camera frames.
// A frame pipeline of downscale, grayscale, blur, and per-pixel absolute
// difference yields a changed-pixel count; the count decides whether the
// bench is still being worked on or has settled.
package motion

import (
	"image"

	"github.com/disintegration/imaging"
)

// ForcedScore is the score reported for the first frame after
// construction or Reset. It is far above any plausible threshold, so a
// fresh detector always reads as moving.
const ForcedScore = 100000

// Scores are rescaled to this reference area so thresholds keep their
// meaning regardless of capture resolution.
const (
	refWidth  = 640
	refHeight = 480
)

// Config holds scoring parameters.
type Config struct {
	// PixelDelta is the per-pixel luma change (0..255) above which a pixel
	// counts as changed.
	PixelDelta int
	// Threshold is the changed-pixel count, against the reference area,
	// above which the scene counts as moving.
	Threshold int
	// WorkingWidth is the width frames are downscaled to before scoring.
	WorkingWidth int
	// BlurSigma is the gaussian blur applied before differencing.
	BlurSigma float64
}

// DefaultConfig returns the stock scoring parameters.
func DefaultConfig() Config {
	return Config{
		PixelDelta:   25,
		Threshold:    5000,
		WorkingWidth: 320,
		BlurSigma:    3.5,
	}
}

// Detector scores motion between consecutive frames. It keeps the
// previous frame's luma plane as the baseline. Not safe for concurrent
// use; the engine owns exactly one detector.
type Detector struct {
	cfg  Config
	prev []uint8
	w, h int
}

// NewDetector creates a detector, filling unset config fields with
// defaults.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.PixelDelta <= 0 {
		cfg.PixelDelta = def.PixelDelta
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.WorkingWidth <= 0 {
		cfg.WorkingWidth = def.WorkingWidth
	}
	if cfg.BlurSigma <= 0 {
		cfg.BlurSigma = def.BlurSigma
	}
	return &Detector{cfg: cfg}
}

// Score returns the rescaled changed-pixel count between img and the
// previous frame, and stores img as the new baseline. The first frame
// after construction, Reset, or a frame-geometry change scores
// ForcedScore.
func (d *Detector) Score(img image.Image) int {
	luma, w, h := d.prepare(img)
	if d.prev == nil || w != d.w || h != d.h {
		d.prev, d.w, d.h = luma, w, h
		return ForcedScore
	}

	changed := 0
	for i := range luma {
		delta := int(luma[i]) - int(d.prev[i])
		if delta < 0 {
			delta = -delta
		}
		if delta > d.cfg.PixelDelta {
			changed++
		}
	}
	d.prev = luma

	return changed * (refWidth * refHeight) / (w * h)
}

// Moving reports whether a score is above the configured threshold.
func (d *Detector) Moving(score int) bool {
	return score > d.cfg.Threshold
}

// Threshold returns the configured motion threshold.
func (d *Detector) Threshold() int {
	return d.cfg.Threshold
}

// Reset drops the baseline; the next frame scores ForcedScore.
func (d *Detector) Reset() {
	d.prev = nil
}

// prepare downscales, grays, and blurs a frame, returning its luma plane.
func (d *Detector) prepare(img image.Image) ([]uint8, int, int) {
	small := imaging.Resize(img, d.cfg.WorkingWidth, 0, imaging.Box)
	gray := imaging.Blur(imaging.Grayscale(small), d.cfg.BlurSigma)

	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	luma := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			luma[y*w+x] = row[x*4]
		}
	}
	return luma, w, h
}
