package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"sparkeye/internal/logging"
)

// StreamConfig configures an MJPEG-over-HTTP source (IP cameras, phone
// webcam apps).
type StreamConfig struct {
	URL string
	// Client must have no overall timeout; the stream never ends.
	Client     *http.Client
	MaxBackoff time.Duration
}

// StreamSource reads a multipart/x-mixed-replace JPEG stream and
// reconnects with capped exponential backoff when it drops.
type StreamSource struct {
	url        string
	client     *http.Client
	maxBackoff time.Duration
	backoff    time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	out     chan Frame
}

var _ Source = (*StreamSource)(nil)

func NewStreamSource(cfg StreamConfig) *StreamSource {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	return &StreamSource{
		url:        cfg.URL,
		client:     client,
		maxBackoff: maxBackoff,
		backoff:    time.Second,
		doneCh:     make(chan struct{}),
		out:        make(chan Frame, 4),
	}
}

func (s *StreamSource) Name() string { return "stream:" + s.url }

func (s *StreamSource) Frames() <-chan Frame { return s.out }

func (s *StreamSource) Open(ctx context.Context) error {
	if strings.TrimSpace(s.url) == "" {
		return errors.New("capture: stream URL is empty")
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

func (s *StreamSource) Close() error {
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

func (s *StreamSource) run(ctx context.Context) {
	defer close(s.doneCh)
	defer close(s.out)

	var seq uint64
	attempt := 0
	for {
		delivered, err := s.streamOnce(ctx, &seq)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logging.CaptureWarn("stream %s dropped: %v", s.url, err)
		}
		if delivered > 0 {
			attempt = 0
		}

		shift := attempt
		if shift > 6 {
			shift = 6
		}
		wait := time.Duration(1<<uint(shift)) * s.backoff
		if wait > s.maxBackoff {
			wait = s.maxBackoff
		}
		attempt++
		logging.Capture("reconnecting to %s in %s", s.url, wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// streamOnce holds one connection open and emits frames until it breaks.
func (s *StreamSource) streamOnce(ctx context.Context, seq *uint64) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return 0, fmt.Errorf("bad content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return 0, fmt.Errorf("not an MJPEG stream (content type %s)", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return 0, errors.New("stream has no multipart boundary")
	}

	logging.Capture("connected to %s", s.url)
	reader := multipart.NewReader(resp.Body, boundary)
	delivered := 0
	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return delivered, nil
			}
			return delivered, err
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return delivered, err
		}

		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			logging.CaptureDebug("dropped undecodable stream frame: %v", err)
			continue
		}

		*seq++
		select {
		case s.out <- Frame{Image: img, Seq: *seq, At: time.Now()}:
			delivered++
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}
