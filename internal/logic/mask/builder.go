package mask

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Default morphology applied after thresholding.
const (
	DefaultKernelSize       = 3
	DefaultOpenIterations   = 2
	DefaultDilateIterations = 1
)

// ErrEmptyFrame is returned when Build is handed an empty Mat.
var ErrEmptyFrame = errors.New("empty frame")

// Params configures a Builder.
type Params struct {
	Threshold        Threshold
	KernelSize       int // side of the square structuring element, odd
	OpenIterations   int // noise removal passes
	DilateIterations int // region growth passes
}

// DefaultParams returns the black cloak threshold with the standard cleanup.
func DefaultParams() Params {
	return Params{
		Threshold:        BlackCloak(),
		KernelSize:       DefaultKernelSize,
		OpenIterations:   DefaultOpenIterations,
		DilateIterations: DefaultDilateIterations,
	}
}

// Validate checks the threshold and the morphology settings.
func (p Params) Validate() error {
	if err := p.Threshold.Validate(); err != nil {
		return err
	}
	if p.KernelSize < 1 || p.KernelSize%2 == 0 {
		return fmt.Errorf("kernel size must be odd and >= 1, got %d", p.KernelSize)
	}
	if p.OpenIterations < 0 || p.DilateIterations < 0 {
		return fmt.Errorf("morphology iterations must be >= 0, got open=%d dilate=%d",
			p.OpenIterations, p.DilateIterations)
	}
	return nil
}

// Builder turns BGR frames into binary cloak masks.
// A Builder holds native resources and must be closed.
type Builder struct {
	params Params
	lower  gocv.Scalar
	upper  gocv.Scalar
	kernel gocv.Mat
	hsv    gocv.Mat
	opened gocv.Mat
}

// NewBuilder validates p and allocates the structuring element.
func NewBuilder(p Params) (*Builder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	t := p.Threshold
	return &Builder{
		params: p,
		lower:  gocv.NewScalar(float64(t.Lower.H), float64(t.Lower.S), float64(t.Lower.V), 0),
		upper:  gocv.NewScalar(float64(t.Upper.H), float64(t.Upper.S), float64(t.Upper.V), 0),
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(p.KernelSize, p.KernelSize)),
		hsv:    gocv.NewMat(),
		opened: gocv.NewMat(),
	}, nil
}

// Params returns the builder configuration.
func (b *Builder) Params() Params {
	return b.params
}

// Raw writes the unfiltered in-range mask of frame into dst:
// 255 where the HSV pixel lies within the threshold, 0 elsewhere.
func (b *Builder) Raw(frame gocv.Mat, dst *gocv.Mat) error {
	if frame.Empty() {
		return ErrEmptyFrame
	}
	if err := gocv.CvtColor(frame, &b.hsv, gocv.ColorBGRToHSV); err != nil {
		return fmt.Errorf("hsv: %w", err)
	}
	if err := gocv.InRangeWithScalar(b.hsv, b.lower, b.upper, dst); err != nil {
		return fmt.Errorf("in range: %w", err)
	}
	return nil
}

// Build writes the cleaned cloak mask of frame into dst: the raw mask,
// opened to drop speckles, then dilated to regrow the surviving regions.
func (b *Builder) Build(frame gocv.Mat, dst *gocv.Mat) error {
	if err := b.Raw(frame, dst); err != nil {
		return err
	}
	if err := b.morph(dst, gocv.MorphOpen, b.params.OpenIterations); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if err := b.morph(dst, gocv.MorphDilate, b.params.DilateIterations); err != nil {
		return fmt.Errorf("dilate: %w", err)
	}
	return nil
}

// morph applies op n times to dst in place; n == 0 leaves dst untouched.
func (b *Builder) morph(dst *gocv.Mat, op gocv.MorphType, n int) error {
	if n <= 0 {
		return nil
	}
	if err := gocv.MorphologyExWithParams(*dst, &b.opened, op, b.kernel, n, gocv.BorderConstant); err != nil {
		return err
	}
	return b.opened.CopyTo(dst)
}

// Close releases the builder's native resources.
func (b *Builder) Close() error {
	b.kernel.Close()
	b.hsv.Close()
	b.opened.Close()
	return nil
}
