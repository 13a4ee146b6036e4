// Package composite merges a live frame with the reference background
// under a binary cloak mask.
package composite

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	// ErrSizeMismatch means frame, mask and background do not share dimensions.
	ErrSizeMismatch = errors.New("frame, mask and background sizes differ")
	// ErrMaskChannels means the mask is not a single-channel image.
	ErrMaskChannels = errors.New("mask must have a single channel")
	// ErrTypeMismatch means frame and background pixel types differ.
	ErrTypeMismatch = errors.New("frame and background types differ")
	// ErrEmptyInput means the frame or the background holds no pixels.
	ErrEmptyInput = errors.New("empty frame or background")
)

// Compositor replaces cloak pixels with background pixels.
// Scratch buffers are reused across frames; Close releases them.
type Compositor struct {
	inverted gocv.Mat
	fg       gocv.Mat
	bg       gocv.Mat
}

// New creates a Compositor with empty scratch buffers.
func New() *Compositor {
	return &Compositor{
		inverted: gocv.NewMat(),
		fg:       gocv.NewMat(),
		bg:       gocv.NewMat(),
	}
}

// Apply writes into dst the background where mask is set and frame elsewhere.
// There is no blending: every output pixel comes from exactly one source.
func (c *Compositor) Apply(frame, mask, background gocv.Mat, dst *gocv.Mat) error {
	if err := check(frame, mask, background); err != nil {
		return err
	}

	if err := gocv.BitwiseNot(mask, &c.inverted); err != nil {
		return fmt.Errorf("invert mask: %w", err)
	}

	// bitwise_and leaves unmasked destination pixels untouched, so clear
	// the previous frame's selections first.
	c.reset(&c.fg, frame)
	c.reset(&c.bg, frame)
	if err := gocv.BitwiseAndWithMask(frame, frame, &c.fg, c.inverted); err != nil {
		return fmt.Errorf("select frame: %w", err)
	}
	if err := gocv.BitwiseAndWithMask(background, background, &c.bg, mask); err != nil {
		return fmt.Errorf("select background: %w", err)
	}
	if err := gocv.Add(c.fg, c.bg, dst); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

func (c *Compositor) reset(m *gocv.Mat, like gocv.Mat) {
	if m.Rows() == like.Rows() && m.Cols() == like.Cols() && m.Type() == like.Type() {
		m.SetTo(gocv.NewScalar(0, 0, 0, 0))
		return
	}
	m.Close()
	*m = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), like.Rows(), like.Cols(), like.Type())
}

// Close releases the scratch buffers.
func (c *Compositor) Close() error {
	c.inverted.Close()
	c.fg.Close()
	c.bg.Close()
	return nil
}

func check(frame, mask, background gocv.Mat) error {
	if frame.Empty() || background.Empty() {
		return ErrEmptyInput
	}
	if frame.Rows() != background.Rows() || frame.Cols() != background.Cols() {
		return fmt.Errorf("%w: frame %dx%d, background %dx%d", ErrSizeMismatch,
			frame.Cols(), frame.Rows(), background.Cols(), background.Rows())
	}
	if frame.Rows() != mask.Rows() || frame.Cols() != mask.Cols() {
		return fmt.Errorf("%w: frame %dx%d, mask %dx%d", ErrSizeMismatch,
			frame.Cols(), frame.Rows(), mask.Cols(), mask.Rows())
	}
	if frame.Type() != background.Type() {
		return fmt.Errorf("%w: frame %v, background %v", ErrTypeMismatch, frame.Type(), background.Type())
	}
	if mask.Channels() != 1 {
		return fmt.Errorf("%w: got %d", ErrMaskChannels, mask.Channels())
	}
	return nil
}

// Coverage returns the fraction of mask pixels that are set.
func Coverage(mask gocv.Mat) float64 {
	total := mask.Rows() * mask.Cols()
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(mask)) / float64(total)
}
