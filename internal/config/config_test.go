package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/GoCloak/internal/logic/mask"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath(t *testing.T) {
	cfgDir := filepath.Join(t.TempDir(), "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"absolute in configs", filepath.Join(cfgDir, "default.yaml"), false},
		{"relative in configs", "configs/cloak.yaml", false},
		{"space in name", filepath.Join(cfgDir, "blue cloak.yaml"), false},
		{"unicode name", filepath.Join(cfgDir, "cape-noire-é.yaml"), false},
		{"empty", "", true},
		{"traversal", "../../etc/passwd", true},
		{"traversal through configs", "configs/../../../etc/shadow", true},
		{"json", "configs/default.json", true},
		{"yml", "configs/default.yml", true},
		{"no extension", "configs/default", true},
		{"other dir", "other/default.yaml", true},
		{"bare file", "default.yaml", true},
		{"tmp", "/tmp/default.yaml", true},
		{"nested below configs", "configs/sub/default.yaml", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateConfigPath(tc.path)
			if tc.wantErr && err == nil {
				t.Errorf("ValidateConfigPath(%q) = nil, want error", tc.path)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("ValidateConfigPath(%q) = %v, want nil", tc.path, err)
			}
		})
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	if err := ValidateConfigPath(long); err != nil {
		t.Errorf("long names are checked lexically, got: %v", err)
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
camera:
  device: 1
  width: 1280
  height: 720
background:
  samples: 45
  sample_interval_ms: 50
  save_path: "background.png"
cloak:
  lower: {h: 100, s: 120, v: 50}
  upper: {h: 130, s: 255, v: 255}
morphology:
  kernel_size: 5
  open_iterations: 1
  dilate_iterations: 2
display:
  window_title: "Blue Cloak"
  quit_key: "x"
loop:
  retry_delay_ms: 500
  max_read_failures: 20
  stats_every: 30
panel:
  quit_pin: 17
  status_pin: 27
web:
  snapshot_interval_ms: 100
  snapshot_quality: 90
defaults:
  debug_level: 2
  mock_gpio: false
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.Device != 1 || cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if cfg.Background.Samples != 45 {
		t.Errorf("background.samples = %d, want 45", cfg.Background.Samples)
	}
	if cfg.SampleInterval() != 50*time.Millisecond {
		t.Errorf("SampleInterval() = %v, want 50ms", cfg.SampleInterval())
	}
	if cfg.Background.SavePath != "background.png" {
		t.Errorf("background.save_path = %q", cfg.Background.SavePath)
	}
	if cfg.Cloak.Lower != (HSVConfig{100, 120, 50}) || cfg.Cloak.Upper != (HSVConfig{130, 255, 255}) {
		t.Errorf("cloak = %+v", cfg.Cloak)
	}
	if cfg.Morphology.KernelSize != 5 || cfg.Morphology.OpenIterations != 1 || cfg.Morphology.DilateIterations != 2 {
		t.Errorf("morphology = %+v", cfg.Morphology)
	}
	if cfg.Display.WindowTitle != "Blue Cloak" || cfg.QuitKey() != 'x' {
		t.Errorf("display = %+v", cfg.Display)
	}
	if cfg.RetryDelay() != 500*time.Millisecond || cfg.Loop.MaxReadFailures != 20 {
		t.Errorf("loop = %+v", cfg.Loop)
	}
	if !cfg.UsesPanel() || cfg.Panel.QuitPin != 17 || cfg.Panel.StatusPin != 27 {
		t.Errorf("panel = %+v", cfg.Panel)
	}
	if cfg.SnapshotInterval() != 100*time.Millisecond || cfg.Web.SnapshotQuality != 90 {
		t.Errorf("web = %+v", cfg.Web)
	}
	if cfg.Defaults.DebugLevel != 2 || cfg.Defaults.MockGPIO {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should be valid, got: %v", err)
	}
	if cfg.Background.Samples != 30 {
		t.Errorf("samples = %d, want 30", cfg.Background.Samples)
	}
	if cfg.SampleInterval() != 100*time.Millisecond {
		t.Errorf("SampleInterval() = %v, want 100ms", cfg.SampleInterval())
	}
	if cfg.Cloak.Upper.V != 30 || cfg.Cloak.Upper.H != 180 || cfg.Cloak.Upper.S != 255 {
		t.Errorf("default cloak upper = %+v, want black cloak", cfg.Cloak.Upper)
	}
	if cfg.RetryDelay() != time.Second {
		t.Errorf("RetryDelay() = %v, want 1s", cfg.RetryDelay())
	}
	if cfg.Loop.MaxReadFailures != 0 {
		t.Errorf("max_read_failures = %d, want 0 (retry forever)", cfg.Loop.MaxReadFailures)
	}
	if cfg.QuitKey() != 'q' {
		t.Errorf("QuitKey() = %q, want 'q'", cfg.QuitKey())
	}
	if cfg.UsesPanel() {
		t.Error("default config should not use the GPIO panel")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	yaml := `
cloak:
  upper: {h: 180, s: 255, v: 40}
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cloak.Upper.V != 40 {
		t.Errorf("cloak.upper.v = %d, want 40", cfg.Cloak.Upper.V)
	}
	if cfg.Background.Samples != 30 {
		t.Errorf("samples default = %d, want 30", cfg.Background.Samples)
	}
	if cfg.Morphology.OpenIterations != 2 || cfg.Morphology.DilateIterations != 1 {
		t.Errorf("morphology defaults = %+v", cfg.Morphology)
	}
	if cfg.Display.WindowTitle != "Invisible Cloak" {
		t.Errorf("window_title default = %q", cfg.Display.WindowTitle)
	}
}

func TestLoad_ZeroIterationsKept(t *testing.T) {
	yaml := `
morphology:
  open_iterations: 0
  dilate_iterations: 0
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Morphology.OpenIterations != 0 || cfg.Morphology.DilateIterations != 0 {
		t.Errorf("explicit zero iterations should be kept, got %+v", cfg.Morphology)
	}
}

func TestLoad_InvertedThreshold(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"hue", "cloak:\n  lower: {h: 120}\n  upper: {h: 100, s: 255, v: 255}\n"},
		{"saturation", "cloak:\n  lower: {s: 200}\n  upper: {h: 180, s: 100, v: 255}\n"},
		{"value", "cloak:\n  lower: {v: 31}\n  upper: {h: 180, s: 255, v: 30}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("expected error for lower > upper, got nil")
			}
		})
	}
}

func TestValidate_Ranges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative device", func(c *Config) { c.Camera.Device = -1 }},
		{"negative width", func(c *Config) { c.Camera.Width = -640 }},
		{"zero samples", func(c *Config) { c.Background.Samples = 0 }},
		{"too many samples", func(c *Config) { c.Background.Samples = 1001 }},
		{"negative interval", func(c *Config) { c.Background.SampleIntervalMs = -1 }},
		{"hue above 180", func(c *Config) { c.Cloak.Upper.H = 181 }},
		{"saturation above 255", func(c *Config) { c.Cloak.Upper.S = 256 }},
		{"negative value", func(c *Config) { c.Cloak.Lower.V = -1 }},
		{"even kernel", func(c *Config) { c.Morphology.KernelSize = 4 }},
		{"zero kernel", func(c *Config) { c.Morphology.KernelSize = 0 }},
		{"negative open", func(c *Config) { c.Morphology.OpenIterations = -1 }},
		{"empty quit key", func(c *Config) { c.Display.QuitKey = "" }},
		{"long quit key", func(c *Config) { c.Display.QuitKey = "quit" }},
		{"empty title", func(c *Config) { c.Display.WindowTitle = "  " }},
		{"zero retry delay", func(c *Config) { c.Loop.RetryDelayMs = 0 }},
		{"negative max failures", func(c *Config) { c.Loop.MaxReadFailures = -1 }},
		{"negative stats", func(c *Config) { c.Loop.StatsEvery = -1 }},
		{"negative pin", func(c *Config) { c.Panel.QuitPin = -2 }},
		{"shared pin", func(c *Config) { c.Panel.QuitPin, c.Panel.StatusPin = 17, 17 }},
		{"quality zero", func(c *Config) { c.Web.SnapshotQuality = 0 }},
		{"quality above 100", func(c *Config) { c.Web.SnapshotQuality = 101 }},
		{"debug level 5", func(c *Config) { c.Defaults.DebugLevel = 5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidate_HeadlessWithoutTitle(t *testing.T) {
	cfg := Default()
	cfg.Display.Headless = true
	cfg.Display.WindowTitle = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("headless mode does not need a title, got: %v", err)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("empty config should fall back to defaults, got: %v", err)
	}
	if cfg.Background.Samples != Default().Background.Samples {
		t.Errorf("samples = %d, want default", cfg.Background.Samples)
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
camera:
  device: 0
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	if _, err := Load(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load(nonexistent) = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join("configs", "default.yaml")

	if _, err := Load(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load(missing) = %v, want fs.ErrNotExist", err)
	}
	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault(missing) error: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("cfg = %+v, want Default()", cfg)
	}
}

func TestLoadOrDefault_InvalidFileStillFails(t *testing.T) {
	if _, err := LoadOrDefault(writeConfig(t, "{{{{invalid yaml!!!!")); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
	if _, err := LoadOrDefault("cloak.yaml"); err == nil {
		t.Error("expected error for config outside configs/, got nil")
	}
}

func TestMaskParams_FollowsConfig(t *testing.T) {
	cfg := Default()
	cfg.Cloak.Lower = HSVConfig{H: 100, S: 120, V: 50}
	cfg.Cloak.Upper = HSVConfig{H: 130, S: 255, V: 255}
	cfg.Morphology = MorphologyConfig{KernelSize: 5, OpenIterations: 1, DilateIterations: 3}

	p := cfg.MaskParams()
	want := mask.Params{
		Threshold: mask.Threshold{
			Lower: mask.HSV{H: 100, S: 120, V: 50},
			Upper: mask.HSV{H: 130, S: 255, V: 255},
		},
		KernelSize:       5,
		OpenIterations:   1,
		DilateIterations: 3,
	}
	if p != want {
		t.Errorf("MaskParams() = %+v, want %+v", p, want)
	}
}

func TestValidate_ThresholdErrorsWrapMaskError(t *testing.T) {
	cfg := Default()
	cfg.Cloak.Upper.H = 181
	if err := cfg.Validate(); !errors.Is(err, mask.ErrInvalidThreshold) {
		t.Errorf("Validate() = %v, want mask.ErrInvalidThreshold", err)
	}
}

func TestLoad_RejectsPathOutsideConfigs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cloak.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for config outside configs/, got nil")
	}
}
