// Package cloak drives the capture, mask, composite and display pipeline.
package cloak

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/cjeanneret/GoCloak/internal/debug"
	"github.com/cjeanneret/GoCloak/internal/hw/camera"
	"github.com/cjeanneret/GoCloak/internal/hw/display"
	"github.com/cjeanneret/GoCloak/internal/logic/background"
	"github.com/cjeanneret/GoCloak/internal/logic/composite"
	"github.com/cjeanneret/GoCloak/internal/logic/mask"
)

// Defaults applied to zero Options fields.
const (
	DefaultRetryDelay = time.Second
	DefaultQuitKey    = 'q'
	keyPollDelay      = time.Millisecond
)

var (
	// ErrTooManyReadFailures ends a running session after
	// Options.MaxReadFailures consecutive failed reads.
	ErrTooManyReadFailures = errors.New("too many consecutive frame read failures")
	// ErrAlreadyStarted is returned when Run is called twice.
	ErrAlreadyStarted = errors.New("session already started")
)

// Panel is an optional physical control surface.
type Panel interface {
	QuitRequested() bool
	SetRunning(on bool)
}

// Options configures a Session. Zero values select the defaults.
type Options struct {
	Mask           mask.Params
	Samples        int           // background read attempts
	SampleInterval time.Duration // pause after each background attempt
	BackgroundPath string        // write the captured background here, empty = don't

	RetryDelay      time.Duration // wait after a failed read while running
	MaxReadFailures int           // consecutive failures before giving up, 0 = never
	QuitKey         byte
	StatsEvery      int // log frame stats every N frames, 0 = never

	Panel Panel // may be nil

	OnState func(State)    // called on every transition
	OnFrame func(gocv.Mat) // called with each composited frame, before display
}

func (o *Options) applyDefaults() {
	if o.Mask == (mask.Params{}) {
		o.Mask = mask.DefaultParams()
	}
	if o.Samples == 0 {
		o.Samples = background.DefaultSamples
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.QuitKey == 0 {
		o.QuitKey = DefaultQuitKey
	}
}

// Session owns a camera and a display for its whole life.
// Run and Close must be called from the same goroutine; State, Stats and ID
// are safe from any goroutine.
type Session struct {
	id   string
	opts Options
	cam  camera.Camera
	disp display.Display

	builder    *mask.Builder
	compositor *composite.Compositor

	bg     gocv.Mat
	hasBG  bool
	frame  gocv.Mat
	mask   gocv.Mat
	output gocv.Mat

	started      atomic.Bool
	state        atomic.Int32
	frames       atomic.Uint64
	readFailures atomic.Uint64
	consecutive  atomic.Uint64
	coverage     atomic.Uint64 // math.Float64bits

	closeOnce sync.Once
	closeErr  error
}

// NewSession validates opts and allocates the pipeline. On success the
// session owns cam and disp; on error the caller still does.
func NewSession(cam camera.Camera, disp display.Display, opts Options) (*Session, error) {
	if cam == nil || disp == nil {
		return nil, errors.New("camera and display are required")
	}
	opts.applyDefaults()
	if opts.Samples < 1 {
		return nil, fmt.Errorf("background samples must be >= 1, got %d", opts.Samples)
	}
	if opts.RetryDelay < 0 || opts.SampleInterval < 0 {
		return nil, errors.New("delays must be >= 0")
	}
	if opts.MaxReadFailures < 0 {
		return nil, fmt.Errorf("max read failures must be >= 0, got %d", opts.MaxReadFailures)
	}

	builder, err := mask.NewBuilder(opts.Mask)
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}

	s := &Session{
		id:         uuid.New().String(),
		opts:       opts,
		cam:        cam,
		disp:       disp,
		builder:    builder,
		compositor: composite.New(),
		frame:      gocv.NewMat(),
		mask:       gocv.NewMat(),
		output:     gocv.NewMat(),
	}
	s.state.Store(int32(Init))
	p := builder.Params()
	debug.Verbose("Session %s created (threshold %s..%s, kernel %d, open x%d, dilate x%d)", s.id,
		p.Threshold.Lower, p.Threshold.Upper, p.KernelSize, p.OpenIterations, p.DilateIterations)
	return s, nil
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Stats returns the current counters.
func (s *Session) Stats() Stats {
	return Stats{
		Frames:       s.frames.Load(),
		ReadFailures: s.readFailures.Load(),
		Consecutive:  s.consecutive.Load(),
		Coverage:     math.Float64frombits(s.coverage.Load()),
	}
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	debug.Live("State: %s", st)
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

// Run captures the background then composites frames until the quit key,
// the panel button or ctx ends the session. A user or ctx quit returns nil
// once running; ctx cancellation during background capture returns ctx.Err().
func (s *Session) Run(ctx context.Context) (err error) {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer func() {
		if s.opts.Panel != nil {
			s.opts.Panel.SetRunning(false)
		}
		s.setState(Terminated)
	}()

	s.setState(CapturingBackground)
	bg, err := background.Capture(ctx, s.cam, background.Params{
		Samples:  s.opts.Samples,
		Interval: s.opts.SampleInterval,
	})
	if err != nil {
		return fmt.Errorf("background: %w", err)
	}
	s.bg, s.hasBG = bg, true
	debug.Info("Background captured (%dx%d)", bg.Cols(), bg.Rows())
	if s.opts.BackgroundPath != "" {
		s.saveBackground()
	}

	s.setState(Running)
	if s.opts.Panel != nil {
		s.opts.Panel.SetRunning(true)
	}
	debug.Info("Running. Press '%c' to quit.", s.opts.QuitKey)
	return s.loop(ctx)
}

func (s *Session) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			debug.Info("Stopping: %v", ctx.Err())
			return nil
		}
		if s.opts.Panel != nil && s.opts.Panel.QuitRequested() {
			debug.Info("Stopping: panel button")
			return nil
		}

		if !s.read() {
			n := s.consecutive.Add(1)
			s.readFailures.Add(1)
			if s.opts.MaxReadFailures > 0 && n >= uint64(s.opts.MaxReadFailures) {
				return fmt.Errorf("%w (%d)", ErrTooManyReadFailures, n)
			}
			if err := sleep(ctx, s.opts.RetryDelay); err != nil {
				debug.Info("Stopping: %v", err)
				return nil
			}
			continue
		}
		s.consecutive.Store(0)

		if err := s.builder.Build(s.frame, &s.mask); err != nil {
			return fmt.Errorf("mask: %w", err)
		}
		if err := s.compositor.Apply(s.frame, s.mask, s.bg, &s.output); err != nil {
			return fmt.Errorf("composite: %w", err)
		}

		n := s.frames.Add(1)
		cov := composite.Coverage(s.mask)
		s.coverage.Store(math.Float64bits(cov))
		if s.opts.StatsEvery > 0 && n%uint64(s.opts.StatsEvery) == 0 {
			debug.FrameStats(int(n), cov)
		}

		if s.opts.OnFrame != nil {
			s.opts.OnFrame(s.output)
		}
		if err := s.disp.Show(s.output); err != nil {
			return fmt.Errorf("display: %w", err)
		}
		if display.IsKey(s.disp.WaitKey(keyPollDelay), s.opts.QuitKey) {
			debug.Info("Stopping: '%c' pressed", s.opts.QuitKey)
			return nil
		}
	}
}

// read grabs a frame and rejects it when it cannot be composited with the
// background (camera renegotiated its resolution, for instance).
func (s *Session) read() bool {
	if !s.cam.Read(&s.frame) || s.frame.Empty() {
		debug.Warn("Failed to read frame, retrying in %v", s.opts.RetryDelay)
		return false
	}
	if s.frame.Rows() != s.bg.Rows() || s.frame.Cols() != s.bg.Cols() || s.frame.Type() != s.bg.Type() {
		debug.Warn("Frame is %dx%d, background is %dx%d; skipping",
			s.frame.Cols(), s.frame.Rows(), s.bg.Cols(), s.bg.Rows())
		return false
	}
	return true
}

func (s *Session) saveBackground() {
	img, err := s.bg.ToImage()
	if err != nil {
		debug.Warn("Background not saved: %v", err)
		return
	}
	if err := imaging.Save(img, s.opts.BackgroundPath); err != nil {
		debug.Warn("Background not saved: %v", err)
		return
	}
	debug.Info("Background saved to %s", s.opts.BackgroundPath)
}

// Close releases the camera, the display and every native buffer.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.opts.Panel != nil {
			s.opts.Panel.SetRunning(false)
		}
		var errs []error
		if err := s.cam.Close(); err != nil {
			errs = append(errs, fmt.Errorf("camera: %w", err))
		}
		if err := s.disp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("display: %w", err))
		}
		_ = s.builder.Close()
		_ = s.compositor.Close()
		if s.hasBG {
			s.bg.Close()
		}
		s.frame.Close()
		s.mask.Close()
		s.output.Close()
		s.closeErr = errors.Join(errs...)
		debug.Verbose("Session %s closed", s.id)
	})
	return s.closeErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
