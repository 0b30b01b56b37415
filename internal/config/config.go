// Package config loads and saves sparkeye configuration from
// .sparkeye/config.yaml, with environment overrides for keys and paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sparkeye configuration.
type Config struct {
	// Frame acquisition
	Capture CaptureConfig `yaml:"capture"`

	// Motion scoring
	Motion MotionConfig `yaml:"motion"`

	// Watch loop timing
	Watch WatchConfig `yaml:"watch"`

	// Verifier client
	Verify VerifyConfig `yaml:"verify"`

	// Daily call budget
	Usage UsageConfig `yaml:"usage"`

	// Session database and snapshots
	Store StoreConfig `yaml:"store"`

	// Overlay HTTP bridge
	Bridge BridgeConfig `yaml:"bridge"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CaptureConfig selects and tunes the frame source.
type CaptureConfig struct {
	Source    string `yaml:"source"` // device, stream, dir
	Device    int    `yaml:"device"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	StreamURL string `yaml:"stream_url"`
	FramesDir string `yaml:"frames_dir"`
}

// MotionConfig tunes the motion detector.
type MotionConfig struct {
	PixelDelta   int     `yaml:"pixel_delta"`
	Threshold    int     `yaml:"threshold"`
	WorkingWidth int     `yaml:"working_width"`
	BlurSigma    float64 `yaml:"blur_sigma"`
}

// WatchConfig tunes the verification loop timing.
type WatchConfig struct {
	StillnessWindow string `yaml:"stillness_window"`
	Cooldown        string `yaml:"cooldown"`
	AdvanceDwell    string `yaml:"advance_dwell"`
	Tick            string `yaml:"tick"`
}

// VerifyConfig configures the verifier client.
type VerifyConfig struct {
	Provider     string `yaml:"provider"` // gemini, sdk, openai, simulated
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	Timeout      string `yaml:"timeout"`
	CacheTTL     string `yaml:"cache_ttl"`
	CacheRadius  int    `yaml:"cache_radius"`
	MaxImageEdge int    `yaml:"max_image_edge"`
	JPEGQuality  int    `yaml:"jpeg_quality"`
}

// UsageConfig caps verifier spend.
type UsageConfig struct {
	// DailyBudget is the analysis call limit per day; zero means
	// unlimited.
	DailyBudget int `yaml:"daily_budget"`
}

// StoreConfig locates the session database and snapshot tree.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	SnapshotsDir string `yaml:"snapshots_dir"`
}

// BridgeConfig configures the overlay HTTP bridge.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig configures category logging.
type LoggingConfig struct {
	Level      string   `yaml:"level"` // debug, info, warn, error
	Dir        string   `yaml:"dir"`
	Categories []string `yaml:"categories"` // empty enables none, ["all"] everything
}

// DefaultStateDir is where sparkeye keeps its config, database, logs,
// and snapshots, relative to the working directory.
const DefaultStateDir = ".sparkeye"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Source: "device",
			Device: 0,
			Width:  640,
			Height: 480,
		},

		Motion: MotionConfig{
			PixelDelta:   25,
			Threshold:    5000,
			WorkingWidth: 320,
			BlurSigma:    3.5,
		},

		Watch: WatchConfig{
			StillnessWindow: "5s",
			Cooldown:        "15s",
			AdvanceDwell:    "3s",
			Tick:            "100ms",
		},

		Verify: VerifyConfig{
			Provider:     "", // auto-detect from environment
			Model:        "",
			Timeout:      "60s",
			CacheTTL:     "10m",
			CacheRadius:  5,
			MaxImageEdge: 1024,
			JPEGQuality:  85,
		},

		Usage: UsageConfig{
			DailyBudget: 250,
		},

		Store: StoreConfig{
			DatabasePath: filepath.Join(DefaultStateDir, "sparkeye.db"),
			SnapshotsDir: filepath.Join(DefaultStateDir, "snapshots"),
		},

		Bridge: BridgeConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},

		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(DefaultStateDir, "logs"),
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultStateDir, "config.yaml")
}

// Load loads configuration from a YAML file. A missing file returns the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Verifier API key (checked in priority order; the verify package
	// reads the same variables when the config carries no key).
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Verify.APIKey = key
		if c.Verify.Provider == "" {
			c.Verify.Provider = "gemini"
		}
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Verify.APIKey = key
		if c.Verify.Provider == "" {
			c.Verify.Provider = "gemini"
		}
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Verify.APIKey = key
		if c.Verify.Provider == "" {
			c.Verify.Provider = "openai"
		}
	}

	if p := os.Getenv("SPARKEYE_PROVIDER"); p != "" {
		c.Verify.Provider = p
	}
	if m := os.Getenv("SPARKEYE_MODEL"); m != "" {
		c.Verify.Model = m
	}
	if db := os.Getenv("SPARKEYE_DB"); db != "" {
		c.Store.DatabasePath = db
	}
	if listen := os.Getenv("SPARKEYE_BRIDGE"); listen != "" {
		c.Bridge.Enabled = true
		c.Bridge.Listen = listen
	}
}

// GetStillnessWindow returns the stillness window as a duration.
func (c *Config) GetStillnessWindow() time.Duration {
	return parseDuration(c.Watch.StillnessWindow, 5*time.Second)
}

// GetCooldown returns the analysis cooldown as a duration.
func (c *Config) GetCooldown() time.Duration {
	return parseDuration(c.Watch.Cooldown, 15*time.Second)
}

// GetAdvanceDwell returns the correct-verdict dwell as a duration.
func (c *Config) GetAdvanceDwell() time.Duration {
	return parseDuration(c.Watch.AdvanceDwell, 3*time.Second)
}

// GetTick returns the engine tick interval as a duration.
func (c *Config) GetTick() time.Duration {
	return parseDuration(c.Watch.Tick, 100*time.Millisecond)
}

// GetVerifyTimeout returns the verifier request timeout as a duration.
func (c *Config) GetVerifyTimeout() time.Duration {
	return parseDuration(c.Verify.Timeout, 60*time.Second)
}

// GetCacheTTL returns the verdict cache lifetime as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Verify.CacheTTL, 10*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidSources lists the supported capture sources.
var ValidSources = []string{"device", "stream", "dir"}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	validSource := false
	for _, s := range ValidSources {
		if c.Capture.Source == s {
			validSource = true
			break
		}
	}
	if !validSource {
		return fmt.Errorf("invalid capture source: %s (valid: %v)", c.Capture.Source, ValidSources)
	}
	if c.Capture.Source == "stream" && c.Capture.StreamURL == "" {
		return fmt.Errorf("capture source is stream but stream_url is empty")
	}
	if c.Capture.Source == "dir" && c.Capture.FramesDir == "" {
		return fmt.Errorf("capture source is dir but frames_dir is empty")
	}
	if c.Motion.Threshold <= 0 {
		return fmt.Errorf("motion threshold must be positive, got %d", c.Motion.Threshold)
	}
	if c.Usage.DailyBudget < 0 {
		return fmt.Errorf("daily budget cannot be negative, got %d", c.Usage.DailyBudget)
	}
	return nil
}
