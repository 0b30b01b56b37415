// Package capture acquires frames from cameras, MJPEG streams, watched
// directories, and fixed test fixtures behind one Source interface.
package capture

import (
	"context"
	"image"
	"time"
)

// Frame is one captured image with its sequence number and capture time.
type Frame struct {
	Image image.Image
	Seq   uint64
	At    time.Time
}

// Source produces frames from some acquisition backend.
//
// Open starts delivery; Frames returns the channel frames arrive on. The
// channel closes when the source stops, either from Close or from an
// unrecoverable backend failure. Close is safe to call more than once.
type Source interface {
	Open(ctx context.Context) error
	Frames() <-chan Frame
	Close() error
	Name() string
}
