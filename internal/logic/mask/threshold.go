package mask

import (
	"errors"
	"fmt"
)

// OpenCV 8-bit HSV ranges: hue is halved to fit a byte.
const (
	MaxHue        = 180
	MaxSaturation = 255
	MaxValue      = 255
)

// ErrInvalidThreshold is returned when a threshold cannot describe a usable range.
var ErrInvalidThreshold = errors.New("invalid color threshold")

// HSV is a color in OpenCV's 8-bit HSV space.
type HSV struct {
	H, S, V int
}

func (c HSV) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.H, c.S, c.V)
}

func (c HSV) inGamut() bool {
	return c.H >= 0 && c.H <= MaxHue &&
		c.S >= 0 && c.S <= MaxSaturation &&
		c.V >= 0 && c.V <= MaxValue
}

// Threshold is an inclusive, per-component HSV range.
type Threshold struct {
	Lower HSV
	Upper HSV
}

// BlackCloak matches dark pixels of any hue and saturation.
func BlackCloak() Threshold {
	return Threshold{
		Lower: HSV{0, 0, 0},
		Upper: HSV{MaxHue, MaxSaturation, 30},
	}
}

// Validate rejects out-of-gamut bounds and lower > upper on any component.
func (t Threshold) Validate() error {
	if !t.Lower.inGamut() {
		return fmt.Errorf("%w: lower bound %v out of range", ErrInvalidThreshold, t.Lower)
	}
	if !t.Upper.inGamut() {
		return fmt.Errorf("%w: upper bound %v out of range", ErrInvalidThreshold, t.Upper)
	}
	if t.Lower.H > t.Upper.H || t.Lower.S > t.Upper.S || t.Lower.V > t.Upper.V {
		return fmt.Errorf("%w: lower %v exceeds upper %v", ErrInvalidThreshold, t.Lower, t.Upper)
	}
	return nil
}

// Contains reports whether c lies within the threshold, bounds included.
func (t Threshold) Contains(c HSV) bool {
	return c.H >= t.Lower.H && c.H <= t.Upper.H &&
		c.S >= t.Lower.S && c.S <= t.Upper.S &&
		c.V >= t.Lower.V && c.V <= t.Upper.V
}

// Window returns a threshold centred on c, widened by the given deltas and
// clamped to the HSV gamut.
func Window(c HSV, dh, ds, dv int) Threshold {
	return Threshold{
		Lower: HSV{
			H: clamp(c.H-dh, 0, MaxHue),
			S: clamp(c.S-ds, 0, MaxSaturation),
			V: clamp(c.V-dv, 0, MaxValue),
		},
		Upper: HSV{
			H: clamp(c.H+dh, 0, MaxHue),
			S: clamp(c.S+ds, 0, MaxSaturation),
			V: clamp(c.V+dv, 0, MaxValue),
		},
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
