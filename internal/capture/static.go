package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

// StaticSource replays a fixed set of images at a configurable interval.
// With loop set it cycles forever; otherwise it emits each image once and
// closes the frame channel.
type StaticSource struct {
	name     string
	images   []image.Image
	interval time.Duration
	loop     bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	out     chan Frame
}

var _ Source = (*StaticSource)(nil)

func NewStaticSource(name string, images []image.Image, interval time.Duration, loop bool) *StaticSource {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &StaticSource{
		name:     name,
		images:   images,
		interval: interval,
		loop:     loop,
		doneCh:   make(chan struct{}),
		out:      make(chan Frame, 4),
	}
}

func (s *StaticSource) Name() string {
	if s.name != "" {
		return s.name
	}
	return "static"
}

func (s *StaticSource) Frames() <-chan Frame { return s.out }

func (s *StaticSource) Open(ctx context.Context) error {
	if len(s.images) == 0 {
		return errors.New("capture: static source has no images")
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

func (s *StaticSource) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	<-s.doneCh
	return nil
}

func (s *StaticSource) run(ctx context.Context) {
	defer close(s.doneCh)
	defer close(s.out)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var seq uint64
	i := 0
	for {
		seq++
		select {
		case s.out <- Frame{Image: s.images[i], Seq: seq, At: time.Now()}:
		case <-ctx.Done():
			return
		}

		i++
		if i >= len(s.images) {
			if !s.loop {
				return
			}
			i = 0
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
