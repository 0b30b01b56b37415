//go:build linux

package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"strings"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"sparkeye/internal/logging"
)

// V4L2 fourcc for MJPG.
const mjpegFourCC = webcam.PixelFormat(0x47504A4D)

// DeviceSource captures from a local V4L2 camera, negotiating an MJPEG
// pixel format and JPEG-decoding each frame.
type DeviceSource struct {
	cfg  DeviceConfig
	path string
	cam  *webcam.Webcam

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	out     chan Frame
}

var _ Source = (*DeviceSource)(nil)

func NewDeviceSource(cfg DeviceConfig) *DeviceSource {
	return &DeviceSource{
		cfg:    cfg.withDefaults(),
		doneCh: make(chan struct{}),
		out:    make(chan Frame, 4),
	}
}

func (d *DeviceSource) Name() string {
	if d.path != "" {
		return d.path
	}
	if d.cfg.Path != "" {
		return d.cfg.Path
	}
	return fmt.Sprintf("/dev/video%d", d.cfg.Index)
}

func (d *DeviceSource) Frames() <-chan Frame { return d.out }

func (d *DeviceSource) Open(ctx context.Context) error {
	cam, path, err := d.openDevice()
	if err != nil {
		return err
	}

	format, err := negotiateMJPEG(cam)
	if err != nil {
		cam.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	w, h := pickFrameSize(cam.GetSupportedFrameSizes(format), d.cfg.Width, d.cfg.Height)
	_, gotW, gotH, err := cam.SetImageFormat(format, w, h)
	if err != nil {
		cam.Close()
		return fmt.Errorf("%s: failed to set image format: %w", path, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return fmt.Errorf("%s: failed to start streaming: %w", path, err)
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		cam.StopStreaming()
		cam.Close()
		return nil
	}
	d.running = true
	d.cam = cam
	d.path = path
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	logging.Capture("camera %s streaming MJPEG %dx%d", path, gotW, gotH)
	go d.run(runCtx)
	return nil
}

func (d *DeviceSource) Close() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.cancel()
	<-d.doneCh
	return nil
}

// openDevice opens the configured device, falling back to the next index
// once when no explicit path is set.
func (d *DeviceSource) openDevice() (*webcam.Webcam, string, error) {
	if d.cfg.Path != "" {
		cam, err := webcam.Open(d.cfg.Path)
		if err != nil {
			return nil, "", fmt.Errorf("could not open video device %s: %w", d.cfg.Path, err)
		}
		return cam, d.cfg.Path, nil
	}

	path := fmt.Sprintf("/dev/video%d", d.cfg.Index)
	cam, err := webcam.Open(path)
	if err == nil {
		return cam, path, nil
	}

	alt := fmt.Sprintf("/dev/video%d", d.cfg.Index+1)
	logging.CaptureWarn("open %s failed (%v), trying %s", path, err, alt)
	cam, altErr := webcam.Open(alt)
	if altErr != nil {
		return nil, "", fmt.Errorf("could not open video device %s: %w", path, err)
	}
	return cam, alt, nil
}

func (d *DeviceSource) run(ctx context.Context) {
	defer close(d.doneCh)
	defer close(d.out)
	defer func() {
		d.cam.StopStreaming()
		d.cam.Close()
	}()

	var seq uint64
	for {
		if ctx.Err() != nil {
			return
		}
		err := d.cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			logging.CaptureError("camera %s wait failed: %v", d.path, err)
			return
		}

		data, err := d.cam.ReadFrame()
		if err != nil {
			logging.CaptureWarn("camera %s read failed: %v", d.path, err)
			continue
		}
		if len(data) == 0 {
			continue
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			logging.CaptureDebug("dropped undecodable camera frame: %v", err)
			continue
		}

		seq++
		select {
		case d.out <- Frame{Image: img, Seq: seq, At: time.Now()}:
		case <-ctx.Done():
			return
		}
	}
}

// negotiateMJPEG finds an MJPEG pixel format on the camera, matching the
// fourcc first and the format description as a fallback.
func negotiateMJPEG(cam *webcam.Webcam) (webcam.PixelFormat, error) {
	formats := cam.GetSupportedFormats()
	if _, ok := formats[mjpegFourCC]; ok {
		return mjpegFourCC, nil
	}
	for f, desc := range formats {
		if strings.Contains(strings.ToUpper(desc), "JPEG") {
			return f, nil
		}
	}
	return 0, fmt.Errorf("camera offers no MJPEG format (has: %v)", formats)
}

// pickFrameSize chooses the supported size closest in area to the wanted
// one. Stepwise ranges snap the wanted size onto the step grid.
func pickFrameSize(sizes []webcam.FrameSize, wantW, wantH uint32) (uint32, uint32) {
	if len(sizes) == 0 {
		return wantW, wantH
	}
	want := int64(wantW) * int64(wantH)
	var bestW, bestH uint32
	bestDiff := int64(-1)
	for _, s := range sizes {
		w := snapToRange(wantW, s.MinWidth, s.MaxWidth, s.StepWidth)
		h := snapToRange(wantH, s.MinHeight, s.MaxHeight, s.StepHeight)
		diff := int64(w)*int64(h) - want
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			bestW, bestH = w, h
		}
	}
	return bestW, bestH
}

func snapToRange(want, min, max, step uint32) uint32 {
	if step == 0 || min == max {
		return min
	}
	if want <= min {
		return min
	}
	if want >= max {
		return max
	}
	return min + ((want-min)/step)*step
}
