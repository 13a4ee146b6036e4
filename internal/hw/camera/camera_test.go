package camera

import "testing"

func TestWebcam_ImplementsCamera(t *testing.T) {
	var _ Camera = (*Webcam)(nil) // compile-time check
}
