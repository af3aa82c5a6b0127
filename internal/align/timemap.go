package align

import "fmt"

// minRate is the floor for per-phoneme duration ratios. The engine's
// overlap-add resynthesis degenerates below a 16x compression.
const minRate = 0.0625

// DurationMap is a frame-ready time-warp: phoneme boundary times from the
// source audio plus the relative duration ratio of each interval
// (target duration / source duration). Times has one more entry than Rates.
type DurationMap struct {
	Times []float64
	Rates []float64
}

// TotalDuration returns the duration of the warped audio in seconds.
func (m *DurationMap) TotalDuration() float64 {
	var d float64
	for i, r := range m.Rates {
		d += (m.Times[i+1] - m.Times[i]) * r
	}
	return d
}

// TimeMap builds the per-phoneme time-warp between a source and a target
// alignment of the same utterance. Both alignments must contain the same
// number of phonemes in the same order; anything else is ErrAlignmentMismatch.
func TimeMap(source, target *Alignment) (*DurationMap, error) {
	src := source.Phonemes()
	tgt := target.Phonemes()
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: source alignment has no phonemes", ErrAlignmentMismatch)
	}
	if len(src) != len(tgt) {
		return nil, fmt.Errorf("%w: source has %d phonemes, target has %d",
			ErrAlignmentMismatch, len(src), len(tgt))
	}

	times := make([]float64, 0, len(src)+1)
	rates := make([]float64, 0, len(src))
	for i, sp := range src {
		if i > 0 && sp.Start < src[i-1].End {
			return nil, fmt.Errorf("%w: source phoneme %d starts at %.3fs before previous ends at %.3fs",
				ErrAlignmentMismatch, i, sp.Start, src[i-1].End)
		}
		srcDur := sp.Duration()
		if srcDur <= 0 {
			return nil, fmt.Errorf("%w: source phoneme %d (%q) has non-positive duration",
				ErrAlignmentMismatch, i, sp.Label)
		}
		rate := tgt[i].Duration() / srcDur
		if rate < minRate {
			rate = minRate
		}
		times = append(times, sp.Start)
		rates = append(rates, rate)
	}
	times = append(times, src[len(src)-1].End)

	return &DurationMap{Times: times, Rates: rates}, nil
}

// ConstantMap builds the trivial warp target_time = source_time / factor over
// audio of the given duration. A factor above 1 shortens the audio.
func ConstantMap(factor, duration float64) (*DurationMap, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("stretch factor must be positive, got %v", factor)
	}
	rate := 1 / factor
	if rate < minRate {
		rate = minRate
	}
	return &DurationMap{
		Times: []float64{0, duration},
		Rates: []float64{rate},
	}, nil
}
