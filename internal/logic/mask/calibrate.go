package mask

import (
	"fmt"

	"gocv.io/x/gocv"
)

// RGBToHSV converts one RGB color the same way frames are converted before
// thresholding, so the result can be pasted into a threshold as is.
func RGBToHSV(r, g, b uint8) (HSV, error) {
	rgb := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(r), float64(g), float64(b), 0), 1, 1, gocv.MatTypeCV8UC3)
	defer rgb.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()

	if err := gocv.CvtColor(rgb, &hsv, gocv.ColorRGBToHSV); err != nil {
		return HSV{}, fmt.Errorf("hsv: %w", err)
	}
	px := hsv.GetVecbAt(0, 0)
	return HSV{H: int(px[0]), S: int(px[1]), V: int(px[2])}, nil
}
