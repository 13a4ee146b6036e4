package panel

import (
	"github.com/cjeanneret/GoCloak/internal/debug"
	"github.com/cjeanneret/GoCloak/internal/hw/gpio"
)

// Config holds the GPIO wiring of the control panel (BCM numbering).
type Config struct {
	QuitPin   int // push button to GND, internal pull-up. 0 = not used. Active LOW.
	StatusPin int // LED lit while the cloak is running. 0 = not used. Active HIGH.
}

// Panel is an optional physical control surface: a quit button and a
// status LED. It complements the keyboard quit key.
type Panel struct {
	gpio     gpio.Driver
	cfg      Config
	released bool // last sampled button state; a press is a released->pressed edge
}

// New configures the panel pins. The LED starts off.
func New(g gpio.Driver, cfg Config) *Panel {
	if cfg.QuitPin > 0 {
		_ = g.SetupPin(cfg.QuitPin, gpio.InputPullUp)
	}
	if cfg.StatusPin > 0 {
		_ = g.SetupPin(cfg.StatusPin, gpio.Output)
		_ = g.WritePin(cfg.StatusPin, gpio.Low)
	}
	return &Panel{
		gpio:     g,
		cfg:      cfg,
		released: true,
	}
}

// QuitRequested samples the quit button and reports a new press.
// Holding the button reports true once; read errors count as not pressed.
func (p *Panel) QuitRequested() bool {
	if p.cfg.QuitPin <= 0 {
		return false
	}
	level, err := p.gpio.ReadPin(p.cfg.QuitPin)
	if err != nil {
		debug.Warn("Panel: reading quit button (pin %d): %v", p.cfg.QuitPin, err)
		return false
	}
	pressed := level == gpio.Low
	edge := pressed && p.released
	p.released = !pressed
	if edge {
		debug.Live("Panel: quit button pressed")
	}
	return edge
}

// SetRunning switches the status LED.
func (p *Panel) SetRunning(on bool) {
	if p.cfg.StatusPin <= 0 {
		return
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := p.gpio.WritePin(p.cfg.StatusPin, level); err != nil {
		debug.Warn("Panel: setting status LED (pin %d): %v", p.cfg.StatusPin, err)
	}
}

// Close turns the LED off. The driver itself is owned by the caller.
func (p *Panel) Close() error {
	p.SetRunning(false)
	return nil
}
