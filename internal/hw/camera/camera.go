package camera

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrDeviceUnavailable means the capture device could not be opened.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// Camera is the video source used by the rest of the application,
// regardless of how frames are obtained (V4L2, AVFoundation, test doubles).
type Camera interface {
	// Read grabs the next frame into dst. It returns false when no frame
	// could be read; dst content is then undefined.
	Read(dst *gocv.Mat) bool

	// Close releases the device.
	Close() error
}

// Config selects and sizes the capture device.
type Config struct {
	Device int // device index, 0 = first camera
	Width  int // requested frame width, 0 = device default
	Height int // requested frame height, 0 = device default
}
