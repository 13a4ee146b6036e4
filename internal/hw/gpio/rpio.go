package gpio

import (
	"fmt"

	"github.com/cjeanneret/GoCloak/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives Raspberry Pi pins through go-rpio's memory-mapped registers.
// Pins must be set up before use.
type RPiDriver struct {
	modes map[int]PinMode
}

// NewRPiRealDriver maps the GPIO registers.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return &RPiDriver{modes: make(map[int]PinMode)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
		p.PullOff()
	case InputPullUp:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.modes[pin] = mode
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	if mode, ok := r.modes[pin]; !ok || mode != Output {
		return fmt.Errorf("pin %d is not set up as output", pin)
	}
	if level == High {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	if _, ok := r.modes[pin]; !ok {
		return Low, fmt.Errorf("pin %d is not set up", pin)
	}
	level := Level(rpio.Pin(pin).Read() == rpio.High)
	debug.GPIO("ReadPin", pin, level)
	return level, nil
}

// Close returns every used pin to a floating input, then unmaps the registers.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	for pin := range r.modes {
		p := rpio.Pin(pin)
		p.Input()
		p.PullOff()
	}
	r.modes = make(map[int]PinMode)
	return rpio.Close()
}
