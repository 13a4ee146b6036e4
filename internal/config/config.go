package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/GoCloak/internal/logic/mask"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// CameraConfig selects the capture device.
type CameraConfig struct {
	Device int `yaml:"device"` // device index, 0 = first camera
	Width  int `yaml:"width"`  // requested width in px, 0 = device default
	Height int `yaml:"height"` // requested height in px, 0 = device default
}

// BackgroundConfig describes the background sampling window.
type BackgroundConfig struct {
	Samples          int    `yaml:"samples"`            // read attempts (default 30)
	SampleIntervalMs int    `yaml:"sample_interval_ms"` // pause after each attempt (default 100)
	SavePath         string `yaml:"save_path"`          // optional image file for the captured background
}

// HSVConfig is a color in OpenCV 8-bit HSV (H 0-180, S and V 0-255).
type HSVConfig struct {
	H int `yaml:"h"`
	S int `yaml:"s"`
	V int `yaml:"v"`
}

// CloakConfig is the color range treated as cloak.
type CloakConfig struct {
	Lower HSVConfig `yaml:"lower"`
	Upper HSVConfig `yaml:"upper"`
}

// MorphologyConfig controls mask cleanup.
type MorphologyConfig struct {
	KernelSize       int `yaml:"kernel_size"`       // odd, square structuring element
	OpenIterations   int `yaml:"open_iterations"`   // noise removal, 0 = skip
	DilateIterations int `yaml:"dilate_iterations"` // region growth, 0 = skip
}

// DisplayConfig controls the output window.
type DisplayConfig struct {
	WindowTitle string `yaml:"window_title"`
	QuitKey     string `yaml:"quit_key"` // single character
	Headless    bool   `yaml:"headless"` // no window (use the web snapshot)
}

// LoopConfig controls the frame loop.
type LoopConfig struct {
	RetryDelayMs    int `yaml:"retry_delay_ms"`    // wait after a failed read
	MaxReadFailures int `yaml:"max_read_failures"` // consecutive failures before giving up, 0 = never
	StatsEvery      int `yaml:"stats_every"`       // log frame stats every N frames, 0 = never
}

// PanelConfig wires the optional GPIO control panel (BCM numbering).
type PanelConfig struct {
	QuitPin   int `yaml:"quit_pin"`   // push button to GND, 0 = not used
	StatusPin int `yaml:"status_pin"` // LED, 0 = not used
}

// WebConfig tunes the optional status server.
type WebConfig struct {
	SnapshotIntervalMs int `yaml:"snapshot_interval_ms"` // min delay between JPEG encodes
	SnapshotQuality    int `yaml:"snapshot_quality"`     // JPEG quality 1-100
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Background BackgroundConfig `yaml:"background"`
	Cloak      CloakConfig      `yaml:"cloak"`
	Morphology MorphologyConfig `yaml:"morphology"`
	Display    DisplayConfig    `yaml:"display"`
	Loop       LoopConfig       `yaml:"loop"`
	Panel      PanelConfig      `yaml:"panel"`
	Web        WebConfig        `yaml:"web"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// Default returns the built-in configuration: first camera, black cloak.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{Device: 0},
		Background: BackgroundConfig{
			Samples:          30,
			SampleIntervalMs: 100,
		},
		Cloak: CloakConfig{
			Lower: HSVConfig{H: 0, S: 0, V: 0},
			Upper: HSVConfig{H: 180, S: 255, V: 30},
		},
		Morphology: MorphologyConfig{
			KernelSize:       3,
			OpenIterations:   2,
			DilateIterations: 1,
		},
		Display: DisplayConfig{
			WindowTitle: "Invisible Cloak",
			QuitKey:     "q",
		},
		Loop: LoopConfig{
			RetryDelayMs: 1000,
			StatsEvery:   100,
		},
		Web: WebConfig{
			SnapshotIntervalMs: 200,
			SnapshotQuality:    80,
		},
		Defaults: DefaultsConfig{
			DebugLevel: 1,
			MockGPIO:   true,
		},
	}
}

// ValidateConfigPath accepts only .yaml files located directly in a
// configs/ directory, without parent traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file over the built-in defaults and validates the result.
// Keys missing from the file keep their default value.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load for an implicit path: a missing file yields the
// built-in configuration instead of an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// Validate checks every value and fails on the first inconsistency.
func (c *Config) Validate() error {
	if c.Camera.Device < 0 {
		return fmt.Errorf("camera.device must be >= 0, got %d", c.Camera.Device)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("camera.width/height must be >= 0, got %dx%d", c.Camera.Width, c.Camera.Height)
	}

	if c.Background.Samples < 1 || c.Background.Samples > 1000 {
		return fmt.Errorf("background.samples must be between 1 and 1000, got %d", c.Background.Samples)
	}
	if c.Background.SampleIntervalMs < 0 {
		return fmt.Errorf("background.sample_interval_ms must be >= 0, got %d", c.Background.SampleIntervalMs)
	}

	if err := c.MaskParams().Validate(); err != nil {
		return fmt.Errorf("cloak/morphology: %w", err)
	}

	if len(c.Display.QuitKey) != 1 {
		return fmt.Errorf("display.quit_key must be a single character, got %q", c.Display.QuitKey)
	}
	if !c.Display.Headless && strings.TrimSpace(c.Display.WindowTitle) == "" {
		return errors.New("display.window_title is required unless headless")
	}

	if c.Loop.RetryDelayMs <= 0 {
		return fmt.Errorf("loop.retry_delay_ms must be > 0, got %d", c.Loop.RetryDelayMs)
	}
	if c.Loop.MaxReadFailures < 0 {
		return fmt.Errorf("loop.max_read_failures must be >= 0, got %d", c.Loop.MaxReadFailures)
	}
	if c.Loop.StatsEvery < 0 {
		return fmt.Errorf("loop.stats_every must be >= 0, got %d", c.Loop.StatsEvery)
	}

	if c.Panel.QuitPin < 0 || c.Panel.StatusPin < 0 {
		return errors.New("panel pins must be >= 0")
	}
	if c.Panel.QuitPin > 0 && c.Panel.QuitPin == c.Panel.StatusPin {
		return fmt.Errorf("panel.quit_pin and panel.status_pin must differ, both are %d", c.Panel.QuitPin)
	}

	if c.Web.SnapshotIntervalMs < 0 {
		return fmt.Errorf("web.snapshot_interval_ms must be >= 0, got %d", c.Web.SnapshotIntervalMs)
	}
	if c.Web.SnapshotQuality < 1 || c.Web.SnapshotQuality > 100 {
		return fmt.Errorf("web.snapshot_quality must be between 1 and 100, got %d", c.Web.SnapshotQuality)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// MaskParams maps the cloak and morphology sections to mask builder settings.
func (c *Config) MaskParams() mask.Params {
	return mask.Params{
		Threshold: mask.Threshold{
			Lower: mask.HSV{H: c.Cloak.Lower.H, S: c.Cloak.Lower.S, V: c.Cloak.Lower.V},
			Upper: mask.HSV{H: c.Cloak.Upper.H, S: c.Cloak.Upper.S, V: c.Cloak.Upper.V},
		},
		KernelSize:       c.Morphology.KernelSize,
		OpenIterations:   c.Morphology.OpenIterations,
		DilateIterations: c.Morphology.DilateIterations,
	}
}

// SampleInterval returns the pause after each background sample.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Background.SampleIntervalMs) * time.Millisecond
}

// RetryDelay returns the wait after a failed frame read.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Loop.RetryDelayMs) * time.Millisecond
}

// SnapshotInterval returns the minimum delay between two web snapshots.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Web.SnapshotIntervalMs) * time.Millisecond
}

// QuitKey returns the quit key as a byte.
func (c *Config) QuitKey() byte {
	return c.Display.QuitKey[0]
}

// UsesPanel reports whether any GPIO pin is configured.
func (c *Config) UsesPanel() bool {
	return c.Panel.QuitPin > 0 || c.Panel.StatusPin > 0
}
