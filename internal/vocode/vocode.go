// Package vocode composes alignment time-maps, pitch targets, and the
// resynthesis engine into the single-file and batch vocoding operations.
package vocode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/snarg/psola/internal/align"
	"github.com/snarg/psola/internal/audiofile"
	"github.com/snarg/psola/internal/pitch"
	"github.com/snarg/psola/internal/praat"
	"github.com/snarg/psola/internal/storage"
)

// ErrConfiguration indicates malformed or mutually-exclusive arguments,
// detected before any file I/O or engine call.
var ErrConfiguration = errors.New("configuration error")

type stretchKind int

const (
	stretchNone stretchKind = iota
	stretchConstant
	stretchAligned
)

// StretchSpec is the time-stretch request: none, a constant factor, or a
// source/target alignment pair. The variants are mutually exclusive by
// construction.
type StretchSpec struct {
	kind   stretchKind
	factor float64
	source *align.Alignment
	target *align.Alignment
}

// NoStretch requests pitch-shifting only.
func NoStretch() StretchSpec { return StretchSpec{} }

// ConstantStretch requests a uniform rate change; a factor above 1 shortens
// the audio to duration/factor.
func ConstantStretch(factor float64) StretchSpec {
	return StretchSpec{kind: stretchConstant, factor: factor}
}

// AlignedStretch requests variable-rate warping from a source alignment to a
// target alignment of the same utterance.
func AlignedStretch(source, target *align.Alignment) StretchSpec {
	return StretchSpec{kind: stretchAligned, source: source, target: target}
}

// IsZero reports whether the spec requests no time-stretching.
func (s StretchSpec) IsZero() bool { return s.kind == stretchNone }

// timeMap resolves the spec to a DurationMap over audio of the given
// duration, or nil for no stretch.
func (s StretchSpec) timeMap(duration float64) (*align.DurationMap, error) {
	switch s.kind {
	case stretchNone:
		return nil, nil
	case stretchConstant:
		m, err := align.ConstantMap(s.factor, duration)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		return m, nil
	default:
		return align.TimeMap(s.source, s.target)
	}
}

// Pipeline holds the per-run collaborators shared by every item: the engine,
// frequency bounds, output sink, and logger. It carries no per-item state and
// is safe for concurrent use.
type Pipeline struct {
	Engine praat.Engine
	Bounds pitch.Bounds
	Sink   storage.Sink
	Log    zerolog.Logger
}

// Vocode transforms one in-memory buffer: time-stretch per the stretch spec,
// then shift to the target contour. With an empty spec and nil contour it returns the
// input unchanged.
func (p *Pipeline) Vocode(ctx context.Context, buf audiofile.Buffer, stretch StretchSpec, contour pitch.Contour) (audiofile.Buffer, error) {
	if err := p.Bounds.Validate(); err != nil {
		return audiofile.Buffer{}, err
	}
	if contour != nil {
		if err := contour.Validate(); err != nil {
			return audiofile.Buffer{}, err
		}
	}

	warp, err := stretch.timeMap(buf.Duration())
	if err != nil {
		return audiofile.Buffer{}, err
	}

	return p.Engine.Resynthesize(ctx, praat.Request{
		Audio:    buf,
		Bounds:   p.Bounds,
		TimeWarp: warp,
		Pitch:    contour,
	})
}

// FileRequest names the files of one vocoding item. Alignment and pitch paths
// are optional; ConstantStretch of 0 means no constant stretch.
type FileRequest struct {
	AudioFile           string
	SourceAlignmentFile string
	TargetAlignmentFile string
	TargetPitchFile     string
	ConstantStretch     float64
	OutputFile          string
}

// validate enforces the argument contract before any file is touched.
func (r FileRequest) validate() error {
	hasPair := r.SourceAlignmentFile != "" || r.TargetAlignmentFile != ""
	if r.SourceAlignmentFile != "" && r.TargetAlignmentFile == "" {
		return fmt.Errorf("%w: source alignment given without target alignment", ErrConfiguration)
	}
	if r.TargetAlignmentFile != "" && r.SourceAlignmentFile == "" {
		return fmt.Errorf("%w: target alignment given without source alignment", ErrConfiguration)
	}
	if r.ConstantStretch != 0 && hasPair {
		return fmt.Errorf("%w: constant stretch and alignment pair are mutually exclusive", ErrConfiguration)
	}
	if r.ConstantStretch < 0 {
		return fmt.Errorf("%w: constant stretch must be positive, got %v", ErrConfiguration, r.ConstantStretch)
	}
	return nil
}

// FromFile loads the item's inputs from disk, vocodes, and returns the
// result in memory.
func (p *Pipeline) FromFile(ctx context.Context, req FileRequest) (audiofile.Buffer, error) {
	if err := req.validate(); err != nil {
		return audiofile.Buffer{}, err
	}
	if err := p.Bounds.Validate(); err != nil {
		return audiofile.Buffer{}, err
	}

	buf, err := audiofile.ReadWAV(req.AudioFile)
	if err != nil {
		return audiofile.Buffer{}, err
	}

	stretch := NoStretch()
	switch {
	case req.ConstantStretch != 0:
		stretch = ConstantStretch(req.ConstantStretch)
	case req.SourceAlignmentFile != "":
		source, err := align.Load(req.SourceAlignmentFile)
		if err != nil {
			return audiofile.Buffer{}, err
		}
		target, err := align.Load(req.TargetAlignmentFile)
		if err != nil {
			return audiofile.Buffer{}, err
		}
		stretch = AlignedStretch(source, target)
	}

	var contour pitch.Contour
	if req.TargetPitchFile != "" {
		contour, err = pitch.Load(req.TargetPitchFile)
		if err != nil {
			return audiofile.Buffer{}, err
		}
	}

	return p.Vocode(ctx, buf, stretch, contour)
}

// FromFileToFile vocodes one item and saves the result via the output sink.
// The sink writes only after successful synthesis, so a failing item leaves
// no partial output behind.
func (p *Pipeline) FromFileToFile(ctx context.Context, req FileRequest) error {
	if req.OutputFile == "" {
		return fmt.Errorf("%w: no output file", ErrConfiguration)
	}
	out, err := p.FromFile(ctx, req)
	if err != nil {
		return err
	}
	return p.Sink.Save(ctx, req.OutputFile, out)
}
