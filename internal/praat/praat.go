// Package praat is the sole integration point with the external acoustic
// engine that performs the actual TD-PSOLA resynthesis. Everything numeric
// (pitch-marking, windowing, overlap-add) happens inside the engine; this
// package only marshals parameters in and audio out.
package praat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/psola/internal/align"
	"github.com/snarg/psola/internal/audiofile"
	"github.com/snarg/psola/internal/metrics"
	"github.com/snarg/psola/internal/pitch"
)

// ErrVocodingFailed wraps any failure surfaced by the engine, e.g.
// voicing detection on silent or degenerate input. Engine failures are
// permanent for a given input and are never retried.
var ErrVocodingFailed = errors.New("vocoding failed")

// Request carries one resynthesis call's parameters. TimeWarp and Pitch are
// both optional; with neither present the call is a no-op and returns the
// input unchanged (pitch-only and stretch-only use are both valid).
type Request struct {
	Audio    audiofile.Buffer
	Bounds   pitch.Bounds
	TimeWarp *align.DurationMap
	Pitch    pitch.Contour
}

// Engine computes vocoded audio from a Request. Implementations must be safe
// for concurrent use; each call owns its own engine state.
type Engine interface {
	Resynthesize(ctx context.Context, req Request) (audiofile.Buffer, error)
}

// praatAvailable caches whether the praat binary is in PATH.
var praatAvailable *bool

// Check reports whether the praat binary can be found. Call once at startup.
func Check(bin string) bool {
	if praatAvailable != nil {
		return *praatAvailable
	}
	_, err := exec.LookPath(bin)
	avail := err == nil
	praatAvailable = &avail
	return avail
}

// Praat runs the praat binary in batch mode, one subprocess per resynthesis
// pass. Engine state lives entirely inside a per-call temp directory, torn
// down when the call returns, so calls are independent and parallelizable.
type Praat struct {
	bin    string
	tmpDir string
	log    zerolog.Logger
}

// New creates a Praat engine. bin is the praat executable (resolved via
// PATH); tmpDir is where intermediate tiers and WAVs go, "" for the system
// default.
func New(bin, tmpDir string, log zerolog.Logger) *Praat {
	if bin == "" {
		bin = "praat"
	}
	if tmpDir == "" {
		tmpDir = filepath.Join(os.TempDir(), "psola")
	}
	return &Praat{bin: bin, tmpDir: tmpDir, log: log.With().Str("component", "praat").Logger()}
}

// Resynthesize applies the time-warp and then the pitch contour, each as a
// separate manipulation pass, matching the engine's replace-tier workflow.
// The pitch contour spans the post-stretch duration.
func (p *Praat) Resynthesize(ctx context.Context, req Request) (audiofile.Buffer, error) {
	if req.TimeWarp == nil && req.Pitch == nil {
		return req.Audio, nil
	}

	// Unique directory per call so concurrent workers never collide.
	dir := filepath.Join(p.tmpDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return audiofile.Buffer{}, fmt.Errorf("create engine tmpdir: %w", err)
	}
	defer os.RemoveAll(dir)

	audio := req.Audio
	var err error

	if req.TimeWarp != nil {
		audio, err = p.runPass(ctx, filepath.Join(dir, "stretch"), passDuration, audio, req)
		if err != nil {
			return audiofile.Buffer{}, err
		}
	}
	if req.Pitch != nil {
		audio, err = p.runPass(ctx, filepath.Join(dir, "shift"), passPitch, audio, req)
		if err != nil {
			return audiofile.Buffer{}, err
		}
	}
	return audio, nil
}

const (
	passDuration = "duration"
	passPitch    = "pitch"
)

// runPass performs one manipulation round trip: write the input WAV and tier,
// run the engine script, read the resynthesized WAV back.
func (p *Praat) runPass(ctx context.Context, dir, pass string, in audiofile.Buffer, req Request) (audiofile.Buffer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return audiofile.Buffer{}, fmt.Errorf("create pass dir: %w", err)
	}

	if err := audiofile.WriteWAV(filepath.Join(dir, "in.wav"), in); err != nil {
		return audiofile.Buffer{}, fmt.Errorf("stage input audio: %w", err)
	}

	var tierName, replace string
	tier := &bytes.Buffer{}
	switch pass {
	case passDuration:
		tierName = "warp.DurationTier"
		replace = "Replace duration tier"
		if err := WriteDurationTier(tier, req.TimeWarp); err != nil {
			return audiofile.Buffer{}, fmt.Errorf("serialize duration tier: %w", err)
		}
	case passPitch:
		tierName = "target.PitchTier"
		replace = "Replace pitch tier"
		if err := WritePitchTier(tier, req.Pitch, in.Duration()); err != nil {
			return audiofile.Buffer{}, fmt.Errorf("serialize pitch tier: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, tierName), tier.Bytes(), 0o644); err != nil {
		return audiofile.Buffer{}, fmt.Errorf("stage tier: %w", err)
	}

	script := buildScript(tierName, replace, req.Bounds)
	scriptPath := filepath.Join(dir, "resynthesize.praat")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return audiofile.Buffer{}, fmt.Errorf("stage script: %w", err)
	}

	start := time.Now()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.bin, "--run", scriptPath)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	err := cmd.Run()
	metrics.EngineCallsTotal.WithLabelValues(pass).Inc()
	metrics.EngineCallDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
	if err != nil {
		return audiofile.Buffer{}, fmt.Errorf("%w: %s pass: %v: %s",
			ErrVocodingFailed, pass, err, firstLine(stderr.String()))
	}

	out, err := audiofile.ReadWAV(filepath.Join(dir, "out.wav"))
	if err != nil {
		return audiofile.Buffer{}, fmt.Errorf("%w: %s pass produced no readable output: %v",
			ErrVocodingFailed, pass, err)
	}
	if out.Rate != in.Rate {
		return audiofile.Buffer{}, fmt.Errorf("%w: %s pass changed sample rate %d -> %d",
			ErrVocodingFailed, pass, in.Rate, out.Rate)
	}

	p.log.Debug().
		Str("pass", pass).
		Float64("in_duration", in.Duration()).
		Float64("out_duration", out.Duration()).
		Dur("elapsed", time.Since(start)).
		Msg("engine pass complete")

	return out, nil
}

// buildScript emits the engine script for one replace-tier pass. Paths are
// relative to the pass directory so the script carries no host specifics.
func buildScript(tierName, replace string, b pitch.Bounds) string {
	return fmt.Sprintf(`sound = Read from file: "in.wav"
manipulation = To Manipulation: 0.001, %g, %g
tier = Read from file: "%s"
selectObject: tier
plusObject: manipulation
%s
selectObject: manipulation
resynthesis = Get resynthesis (overlap-add)
Save as WAV file: "out.wav"
`, b.Min, b.Max, tierName, replace)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "(no engine diagnostics)"
	}
	return s
}
