//go:build !linux

package capture

import (
	"context"
	"fmt"
	"runtime"
)

// DeviceSource is only backed by V4L2; other platforms should point a
// StreamSource at a phone or IP camera instead.
type DeviceSource struct {
	cfg DeviceConfig
	out chan Frame
}

var _ Source = (*DeviceSource)(nil)

func NewDeviceSource(cfg DeviceConfig) *DeviceSource {
	out := make(chan Frame)
	close(out)
	return &DeviceSource{cfg: cfg.withDefaults(), out: out}
}

func (d *DeviceSource) Name() string {
	if d.cfg.Path != "" {
		return d.cfg.Path
	}
	return fmt.Sprintf("/dev/video%d", d.cfg.Index)
}

func (d *DeviceSource) Frames() <-chan Frame { return d.out }

func (d *DeviceSource) Open(ctx context.Context) error {
	return fmt.Errorf("camera capture needs linux v4l2 (running on %s); use --stream or --dir instead", runtime.GOOS)
}

func (d *DeviceSource) Close() error { return nil }
