// Package pitch loads and validates target pitch contours and the frequency
// bounds handed to the resynthesis engine.
package pitch

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/sbinet/npyio"
)

var (
	// ErrInvalidPitchContour indicates a contour that is empty, not
	// one-dimensional, or contains negative frequencies.
	ErrInvalidPitchContour = errors.New("invalid pitch contour")

	// ErrInvalidFrequencyBounds indicates a malformed fmin/fmax pair.
	ErrInvalidFrequencyBounds = errors.New("invalid frequency bounds")
)

// Contour is a target pitch contour: one frequency value in Hz per analysis
// frame. NaN marks an unvoiced frame.
type Contour []float64

// Voiced returns the number of voiced (non-NaN) frames.
func (c Contour) Voiced() int {
	n := 0
	for _, v := range c {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Bounds is the allowable fundamental frequency range in Hz.
type Bounds struct {
	Min float64
	Max float64
}

// Validate checks that the bounds describe a non-empty positive range.
func (b Bounds) Validate() error {
	if b.Min <= 0 {
		return fmt.Errorf("%w: fmin must be positive, got %v", ErrInvalidFrequencyBounds, b.Min)
	}
	if b.Min >= b.Max {
		return fmt.Errorf("%w: fmin %v >= fmax %v", ErrInvalidFrequencyBounds, b.Min, b.Max)
	}
	return nil
}

// Validate checks an in-memory contour.
func (c Contour) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPitchContour)
	}
	for i, v := range c {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 {
			return fmt.Errorf("%w: negative frequency %v at frame %d", ErrInvalidPitchContour, v, i)
		}
	}
	return nil
}

// Load reads a contour from the numeric-array serialization on disk (.npy,
// float32 or float64) and validates it.
func Load(path string) (Contour, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read pitch contour: %w", err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse pitch contour %s: %w", path, err)
	}
	shape := r.Header.Descr.Shape
	if len(shape) != 1 {
		return nil, fmt.Errorf("%w: %s has shape %v, want 1-D", ErrInvalidPitchContour, path, shape)
	}

	var c Contour
	switch r.Header.Descr.Type {
	case "<f4", ">f4", "f4":
		var raw []float32
		if err := r.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pitch contour %s: %w", path, err)
		}
		c = make(Contour, len(raw))
		for i, v := range raw {
			c[i] = float64(v)
		}
	default:
		var raw []float64
		if err := r.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pitch contour %s: %w", path, err)
		}
		c = Contour(raw)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
