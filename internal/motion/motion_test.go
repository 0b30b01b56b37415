package motion

import (
	"image"
	"image/color"
	"testing"
)

func solidFrame(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// frameWithBlock returns a black frame with a white square of the given
// size at the top-left corner.
func frameWithBlock(w, h, block int) *image.NRGBA {
	img := solidFrame(w, h, color.Black)
	for y := 0; y < block; y++ {
		for x := 0; x < block; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func TestFirstFrameForcesMotion(t *testing.T) {
	d := NewDetector(DefaultConfig())
	score := d.Score(solidFrame(640, 480, color.Black))
	if score != ForcedScore {
		t.Fatalf("first frame should score %d, got %d", ForcedScore, score)
	}
	if !d.Moving(score) {
		t.Error("forced score must read as moving")
	}
}

func TestIdenticalFramesScoreZero(t *testing.T) {
	d := NewDetector(DefaultConfig())
	frame := solidFrame(640, 480, color.Gray{Y: 90})
	d.Score(frame)
	score := d.Score(frame)
	if score != 0 {
		t.Fatalf("identical frames should score 0, got %d", score)
	}
	if d.Moving(score) {
		t.Error("score 0 must not read as moving")
	}
}

func TestLargeChangeReadsAsMoving(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.Score(solidFrame(640, 480, color.Black))
	score := d.Score(frameWithBlock(640, 480, 200))
	if !d.Moving(score) {
		t.Fatalf("200px block should move the score above threshold, got %d", score)
	}
}

func TestTinyChangeStaysBelowThreshold(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.Score(solidFrame(640, 480, color.Black))
	score := d.Score(frameWithBlock(640, 480, 4))
	if d.Moving(score) {
		t.Fatalf("4px block should stay below threshold, got %d", score)
	}
}

func TestResetRestoresForcedScore(t *testing.T) {
	d := NewDetector(DefaultConfig())
	frame := solidFrame(640, 480, color.Black)
	d.Score(frame)
	d.Score(frame)
	d.Reset()
	if score := d.Score(frame); score != ForcedScore {
		t.Fatalf("score after Reset should be %d, got %d", ForcedScore, score)
	}
}

func TestGeometryChangeResetsBaseline(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.Score(solidFrame(640, 480, color.Black))
	// Different aspect ratio yields a different working height.
	score := d.Score(solidFrame(640, 360, color.Black))
	if score != ForcedScore {
		t.Fatalf("geometry change should force the score, got %d", score)
	}
}

func TestScoreRescaledToReferenceArea(t *testing.T) {
	// The same full-frame change should land near the same score at
	// different capture resolutions.
	big := NewDetector(DefaultConfig())
	big.Score(solidFrame(1280, 960, color.Black))
	bigScore := big.Score(solidFrame(1280, 960, color.White))

	small := NewDetector(DefaultConfig())
	small.Score(solidFrame(320, 240, color.Black))
	smallScore := small.Score(solidFrame(320, 240, color.White))

	if bigScore != smallScore {
		t.Fatalf("full-frame change should rescale equally: %d vs %d", bigScore, smallScore)
	}
	if bigScore != refWidth*refHeight {
		t.Errorf("full-frame change should score the reference area, got %d", bigScore)
	}
}

func TestMovingIsStrictlyAbove(t *testing.T) {
	d := NewDetector(Config{Threshold: 5000})
	if d.Moving(5000) {
		t.Error("score equal to threshold is not moving")
	}
	if !d.Moving(5001) {
		t.Error("score above threshold is moving")
	}
}
