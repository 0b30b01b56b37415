package capture

// DeviceConfig configures a local V4L2 camera.
type DeviceConfig struct {
	// Index selects /dev/video<Index>. When that device cannot be opened
	// the next index is tried once, since rigs often enumerate the
	// built-in camera first.
	Index int
	// Path overrides Index with an explicit device path.
	Path   string
	Width  uint32
	Height uint32
}

func (c DeviceConfig) withDefaults() DeviceConfig {
	if c.Width == 0 {
		c.Width = 640
	}
	if c.Height == 0 {
		c.Height = 480
	}
	return c
}
