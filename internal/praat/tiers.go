package praat

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/snarg/psola/internal/align"
	"github.com/snarg/psola/internal/pitch"
)

// eps separates the two control points that form a rate discontinuity in a
// DurationTier automation curve.
const eps = 1e-6

// WritePitchTier serializes a target contour as an ooTextFile PitchTier over
// audio of the given duration. Frames are spread evenly across the duration;
// unvoiced (NaN) frames produce no control point.
func WritePitchTier(w io.Writer, c pitch.Contour, duration float64) error {
	if _, err := fmt.Fprintf(w, "File type = \"ooTextFile\"\nObject class = \"PitchTier\"\n\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "0\n%s\n%d\n", formatFloat(duration), c.Voiced()); err != nil {
		return err
	}

	step := 0.0
	if len(c) > 1 {
		step = duration / float64(len(c)-1)
	}
	for i, v := range c {
		if math.IsNaN(v) {
			continue
		}
		t := float64(i) * step
		if _, err := fmt.Fprintf(w, "%s\n%s\n", formatFloat(t), formatFloat(v)); err != nil {
			return err
		}
	}
	return nil
}

// WriteDurationTier serializes a time-warp as an ooTextFile DurationTier.
// Each interval gets two control points just inside its boundaries so the
// rate changes discontinuously at phoneme edges; the tier starts and ends at
// rate 1 so audio outside the aligned region keeps its original timing.
func WriteDurationTier(w io.Writer, m *align.DurationMap) error {
	times, rates := m.Times, m.Rates
	end := times[len(times)-1]

	if _, err := fmt.Fprintf(w, "File type = \"ooTextFile\"\nObject class = \"DurationTier\"\n\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "xmin = 0.000000\nxmax = %.6f\npoints: size = %d\n", end, 2*len(times)); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "points [1]:\n\tnumber = 0\n\tvalue = 1.000000\n"); err != nil {
		return err
	}
	for i, rate := range rates {
		start, stop := times[i], times[i+1]
		if _, err := fmt.Fprintf(w, "points [%d]:\n\tnumber = %.6f\n\tvalue = %.6f\n",
			2*i+2, start+eps, rate); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "points [%d]:\n\tnumber = %.6f\n\tvalue = %.6f\n",
			2*i+3, stop-eps, rate); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "points [%d]:\n\tnumber = %.6f\n\tvalue = 1.000000\n", 2*len(times), end)
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
