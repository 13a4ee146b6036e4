package camera

import (
	"fmt"

	"github.com/cjeanneret/GoCloak/internal/debug"
	"gocv.io/x/gocv"
)

// Webcam is a Camera backed by an OpenCV capture device.
type Webcam struct {
	vc     *gocv.VideoCapture
	device int
}

// OpenWebcam opens the configured device and applies the requested resolution.
// Errors wrap ErrDeviceUnavailable.
func OpenWebcam(cfg Config) (*Webcam, error) {
	vc, err := gocv.VideoCaptureDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrDeviceUnavailable, cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d did not open", ErrDeviceUnavailable, cfg.Device)
	}

	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	debug.Info("Camera %d opened: %dx%d @ %.0f fps", cfg.Device,
		int(vc.Get(gocv.VideoCaptureFrameWidth)),
		int(vc.Get(gocv.VideoCaptureFrameHeight)),
		vc.Get(gocv.VideoCaptureFPS))

	return &Webcam{vc: vc, device: cfg.Device}, nil
}

// Read grabs the next frame. Empty frames count as failed reads.
func (w *Webcam) Read(dst *gocv.Mat) bool {
	if ok := w.vc.Read(dst); !ok {
		return false
	}
	return !dst.Empty()
}

// Close releases the device.
func (w *Webcam) Close() error {
	debug.Verbose("Camera %d: releasing device", w.device)
	return w.vc.Close()
}
