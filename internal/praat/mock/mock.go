// Package mock provides a test double for the praat.Engine interface.
//
// The default behavior mimics the real engine's timing contract without any
// signal processing: pitch-only requests preserve duration exactly, and
// time-warped requests scale the sample count by the warp's total duration.
package mock

import (
	"context"
	"sync"

	"github.com/snarg/psola/internal/audiofile"
	"github.com/snarg/psola/internal/praat"
)

// Engine is a mock implementation of praat.Engine.
type Engine struct {
	mu sync.Mutex

	// ResynthesizeFunc, if non-nil, replaces the default behavior.
	ResynthesizeFunc func(ctx context.Context, req praat.Request) (audiofile.Buffer, error)

	// Err, if non-nil, is returned from every call.
	Err error

	// Requests records every call.
	Requests []praat.Request
}

// Resynthesize records the call and returns a duration-accurate silent
// buffer, or delegates to ResynthesizeFunc / Err when set.
func (e *Engine) Resynthesize(ctx context.Context, req praat.Request) (audiofile.Buffer, error) {
	e.mu.Lock()
	e.Requests = append(e.Requests, req)
	e.mu.Unlock()

	if e.Err != nil {
		return audiofile.Buffer{}, e.Err
	}
	if e.ResynthesizeFunc != nil {
		return e.ResynthesizeFunc(ctx, req)
	}

	// No-op contract: neither tier present returns the input unchanged.
	if req.TimeWarp == nil && req.Pitch == nil {
		return req.Audio, nil
	}

	n := len(req.Audio.Samples)
	if m := req.TimeWarp; m != nil {
		// Audio outside the warped span keeps its original timing.
		span := m.Times[len(m.Times)-1] - m.Times[0]
		outDur := req.Audio.Duration() - span + m.TotalDuration()
		n = int(outDur * float64(req.Audio.Rate))
	}
	return audiofile.Buffer{Samples: make([]float64, n), Rate: req.Audio.Rate}, nil
}

// Calls returns the number of recorded calls. Thread-safe.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Requests)
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Requests = nil
}
