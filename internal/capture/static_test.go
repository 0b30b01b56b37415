package capture

import (
	"context"
	"image"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestStaticSourceEmitsOnceAndCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	images := []image.Image{testImage(10), testImage(120), testImage(240)}
	s := NewStaticSource("fixture", images, 5*time.Millisecond, false)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 1; i <= 3; i++ {
		f := readFrame(t, s.Frames(), time.Second)
		if f.Seq != uint64(i) {
			t.Errorf("frame %d has seq %d", i, f.Seq)
		}
		if f.At.IsZero() {
			t.Error("frame has no capture time")
		}
	}
	expectClosed(t, s.Frames(), time.Second)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestStaticSourceLoops(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStaticSource("", []image.Image{testImage(10), testImage(240)}, 2*time.Millisecond, true)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 5; i++ {
		readFrame(t, s.Frames(), time.Second)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	expectClosed(t, s.Frames(), time.Second)

	if s.Name() != "static" {
		t.Errorf("Name = %q, want static", s.Name())
	}
}

func TestStaticSourceNeedsImages(t *testing.T) {
	s := NewStaticSource("empty", nil, time.Millisecond, false)
	if err := s.Open(context.Background()); err == nil {
		t.Fatal("expected error for source without images")
	}
}

func TestStaticSourceReopenIsNoOp(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStaticSource("x", []image.Image{testImage(50)}, 2*time.Millisecond, true)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
