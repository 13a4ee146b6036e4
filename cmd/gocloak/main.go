package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"gocv.io/x/gocv"

	"github.com/cjeanneret/GoCloak/internal/config"
	"github.com/cjeanneret/GoCloak/internal/debug"
	"github.com/cjeanneret/GoCloak/internal/hw/camera"
	"github.com/cjeanneret/GoCloak/internal/hw/display"
	"github.com/cjeanneret/GoCloak/internal/hw/gpio"
	"github.com/cjeanneret/GoCloak/internal/hw/panel"
	"github.com/cjeanneret/GoCloak/internal/logic/cloak"
	"github.com/cjeanneret/GoCloak/internal/web"
)

var defaultConfigPath = filepath.Join("configs", "default.yaml")

// cliOverrides holds flag values that replace config entries.
// Negative Device and zero Samples mean "use config".
type cliOverrides struct {
	Device   int
	Samples  int
	Headless bool
}

func main() {
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start status server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", "", "path to config file (default "+defaultConfigPath+" if present)")
	device := flag.Int("device", -1, "override camera device index")
	samples := flag.Int("samples", 0, "override number of background samples (1-1000)")
	headless := flag.Bool("headless", false, "run without a window")
	flag.Parse()

	o := cliOverrides{Device: *device, Samples: *samples, Headless: *headless}
	if err := run(*cfgPath, o, webPort.port()); err != nil {
		log.Fatalf("gocloak: %v", err)
	}
}

// run returns once every device is released, so main can exit without leaking the camera.
func run(cfgPath string, o cliOverrides, webPort int) error {
	cfg, cfgPath, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := validateCLIOverrides(o); err != nil {
		return fmt.Errorf("invalid CLI override: %w", err)
	}
	applyOverrides(cfg, o)

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Cloak", cfg.Cloak)
	debug.PrintStruct("Morphology", cfg.Morphology)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var broadcaster *web.StatusBroadcaster
	var snapshots *web.SnapshotStore
	if webPort > 0 {
		broadcaster = web.NewStatusBroadcaster()
		snapshots = web.NewSnapshotStore(cfg.SnapshotInterval(), cfg.Web.SnapshotQuality)
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	opts := sessionOptions(cfg)
	if broadcaster != nil {
		opts.OnState = func(s cloak.State) { broadcaster.BroadcastState(s.String()) }
		opts.OnFrame = func(frame gocv.Mat) {
			if _, err := snapshots.Offer(frame); err != nil {
				debug.Warn("Snapshot: %v", err)
			}
		}
	}

	if cfg.UsesPanel() {
		debug.Step(1, "Initializing GPIO panel")
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		drv, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			return fmt.Errorf("init GPIO: %w", err)
		}
		defer func() {
			if err := drv.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
		p := panel.New(drv, panel.Config{QuitPin: cfg.Panel.QuitPin, StatusPin: cfg.Panel.StatusPin})
		defer p.Close()
		opts.Panel = p
	}

	debug.Step(2, "Opening camera")
	cam, err := camera.OpenWebcam(camera.Config{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	})
	if err != nil {
		return err
	}

	debug.Step(3, "Opening display")
	disp := newDisplay(cfg)

	sess, err := cloak.NewSession(cam, disp, opts)
	if err != nil {
		_ = disp.Close()
		_ = cam.Close()
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Printf("closing session failed: %v", err)
		}
	}()
	debug.Value("Session", sess.ID())

	if webPort > 0 {
		srv, err := web.NewServer(fmt.Sprintf(":%d", webPort), broadcaster, snapshots, stateFunc(sess), configView(cfg))
		if err != nil {
			return err
		}
		webCtx, stopWeb := context.WithCancel(ctx)
		webDone := make(chan struct{})
		go func() {
			defer close(webDone)
			if err := srv.Run(webCtx); err != nil {
				debug.Error(fmt.Errorf("web server: %w", err))
			}
		}()
		defer func() {
			stopWeb()
			<-webDone
		}()
	}

	debug.Section("Starting cloak")
	err = sess.Run(ctx)

	st := sess.Stats()
	debug.Summary("Session " + sess.ID())
	debug.Value("Frames", st.Frames)
	debug.Value("Read failures", st.ReadFailures)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loadConfig reads an explicit path strictly. An empty path selects the
// default file and falls back to built-in values when it does not exist.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	cfg, err := config.LoadOrDefault(defaultConfigPath)
	return cfg, defaultConfigPath, err
}

func newDisplay(cfg *config.Config) display.Display {
	if cfg.Display.Headless {
		debug.Info("Headless mode: no window")
		return display.Headless{}
	}
	return display.NewWindow(cfg.Display.WindowTitle)
}

func sessionOptions(cfg *config.Config) cloak.Options {
	return cloak.Options{
		Mask:            cfg.MaskParams(),
		Samples:         cfg.Background.Samples,
		SampleInterval:  cfg.SampleInterval(),
		BackgroundPath:  cfg.Background.SavePath,
		RetryDelay:      cfg.RetryDelay(),
		MaxReadFailures: cfg.Loop.MaxReadFailures,
		QuitKey:         cfg.QuitKey(),
		StatsEvery:      cfg.Loop.StatsEvery,
	}
}

func configView(cfg *config.Config) web.ConfigView {
	return web.ConfigView{
		Device:           cfg.Camera.Device,
		Samples:          cfg.Background.Samples,
		LowerHSV:         [3]int{cfg.Cloak.Lower.H, cfg.Cloak.Lower.S, cfg.Cloak.Lower.V},
		UpperHSV:         [3]int{cfg.Cloak.Upper.H, cfg.Cloak.Upper.S, cfg.Cloak.Upper.V},
		KernelSize:       cfg.Morphology.KernelSize,
		OpenIterations:   cfg.Morphology.OpenIterations,
		DilateIterations: cfg.Morphology.DilateIterations,
		QuitKey:          cfg.Display.QuitKey,
		Headless:         cfg.Display.Headless,
	}
}

// sessionStatus is the subset of *cloak.Session the status page reads.
type sessionStatus interface {
	ID() string
	State() cloak.State
	Stats() cloak.Stats
}

func stateFunc(s sessionStatus) web.StateFunc {
	return func() web.StateView {
		st := s.Stats()
		return web.StateView{
			SessionID:    s.ID(),
			State:        s.State().String(),
			Frames:       st.Frames,
			ReadFailures: st.ReadFailures,
			Consecutive:  st.Consecutive,
			Coverage:     st.Coverage,
		}
	}
}

// validateCLIOverrides checks flag values that were actually set.
func validateCLIOverrides(o cliOverrides) error {
	if o.Device < -1 {
		return fmt.Errorf("device must be >= 0, got %d", o.Device)
	}
	if o.Samples < 0 || o.Samples > 1000 {
		return fmt.Errorf("samples must be between 1 and 1000, got %d", o.Samples)
	}
	return nil
}

// applyOverrides mutates cfg with the flags that were set.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.Device >= 0 {
		cfg.Camera.Device = o.Device
	}
	if o.Samples > 0 {
		cfg.Background.Samples = o.Samples
	}
	if o.Headless {
		cfg.Display.Headless = true
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w == nil || w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
