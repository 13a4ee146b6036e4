// Package background builds the reference image the cloak reveals.
package background

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cjeanneret/GoCloak/internal/debug"
	"gocv.io/x/gocv"
)

// Defaults for the sampling window.
const (
	DefaultSamples  = 30
	DefaultInterval = 100 * time.Millisecond
)

var (
	// ErrNoData means no sample could be read during the sampling window.
	ErrNoData = errors.New("could not capture any frames for background")
	// ErrShapeMismatch means the samples do not share size and type.
	ErrShapeMismatch = errors.New("background samples differ in size or type")
)

// Source is the subset of a camera needed to sample frames.
type Source interface {
	Read(dst *gocv.Mat) bool
}

// Params defines the sampling window.
type Params struct {
	Samples  int           // read attempts
	Interval time.Duration // pause after each attempt (warm-up, time to leave the scene)
}

// Capture reads p.Samples frames from src and returns their per-pixel median.
// Failed reads are skipped, not zero-filled. The caller owns the returned Mat;
// on error it is the zero Mat and must not be used.
func Capture(ctx context.Context, src Source, p Params) (gocv.Mat, error) {
	if p.Samples < 1 {
		return gocv.Mat{}, fmt.Errorf("sample count must be >= 1, got %d", p.Samples)
	}

	debug.Info("Capturing background (%d samples). Please move out of frame.", p.Samples)

	var frames []gocv.Mat
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()

	buf := gocv.NewMat()
	defer buf.Close()

	for i := 0; i < p.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return gocv.Mat{}, err
		}

		if ok := src.Read(&buf); ok && !buf.Empty() {
			frames = append(frames, buf.Clone())
			debug.Sample(i+1, p.Samples)
		} else {
			debug.Warn("Could not read frame %d/%d", i+1, p.Samples)
		}

		if err := sleep(ctx, p.Interval); err != nil {
			return gocv.Mat{}, err
		}
	}

	if len(frames) == 0 {
		return gocv.Mat{}, ErrNoData
	}

	debug.Live("Computing median of %d/%d frames", len(frames), p.Samples)
	return Median(frames)
}

// Median returns the per-element median of frames. For an even count the two
// middle values are averaged and truncated, as a float median cast to uint8 would be.
func Median(frames []gocv.Mat) (gocv.Mat, error) {
	if len(frames) == 0 {
		return gocv.Mat{}, ErrNoData
	}

	first := frames[0]
	if first.ElemSize() != first.Channels() {
		return gocv.Mat{}, fmt.Errorf("%w: only 8-bit samples are supported, got %v", ErrShapeMismatch, first.Type())
	}
	rows, cols, typ := first.Rows(), first.Cols(), first.Type()
	planes := make([][]byte, len(frames))
	for i, f := range frames {
		if f.Rows() != rows || f.Cols() != cols || f.Type() != typ {
			return gocv.Mat{}, fmt.Errorf("%w: sample %d is %dx%d (%v), want %dx%d (%v)",
				ErrShapeMismatch, i, f.Cols(), f.Rows(), f.Type(), cols, rows, typ)
		}
		planes[i] = f.ToBytes()
	}

	n := len(planes)
	out := make([]byte, len(planes[0]))
	column := make([]byte, n)
	for px := range out {
		for i, plane := range planes {
			column[i] = plane[px]
		}
		slices.Sort(column)
		if n%2 == 1 {
			out[px] = column[n/2]
		} else {
			out[px] = byte((int(column[n/2-1]) + int(column[n/2])) / 2)
		}
	}

	return gocv.NewMatFromBytes(rows, cols, typ, out)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
