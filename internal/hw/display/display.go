// Package display renders composited frames and polls the keyboard.
package display

import (
	"time"

	"gocv.io/x/gocv"
)

// NoKey is returned by WaitKey when no key was pressed.
const NoKey = -1

// Display is the render surface used by the control loop.
type Display interface {
	// Show renders a frame.
	Show(frame gocv.Mat) error

	// WaitKey processes window events for up to delay and returns the
	// pressed key code, or NoKey.
	WaitKey(delay time.Duration) int

	// Close destroys the surface.
	Close() error
}

// Window is a Display backed by an OpenCV HighGUI window.
type Window struct {
	w *gocv.Window
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{w: gocv.NewWindow(title)}
}

func (d *Window) Show(frame gocv.Mat) error {
	return d.w.IMShow(frame)
}

func (d *Window) WaitKey(delay time.Duration) int {
	ms := int(delay / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return d.w.WaitKey(ms)
}

func (d *Window) Close() error {
	return d.w.Close()
}

// Headless is a Display that renders nothing, for machines without a
// screen (the web snapshot still shows the output).
type Headless struct{}

func (Headless) Show(gocv.Mat) error { return nil }

func (Headless) WaitKey(delay time.Duration) int {
	time.Sleep(delay)
	return NoKey
}

func (Headless) Close() error { return nil }

// IsKey reports whether code is the given key. HighGUI may set modifier
// bits above the low byte, so only the low byte is compared.
func IsKey(code int, key byte) bool {
	return code != NoKey && byte(code&0xFF) == key
}
