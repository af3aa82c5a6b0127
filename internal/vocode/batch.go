package vocode

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/snarg/psola/internal/metrics"
)

// BatchRequest is the parallel-list form of a batch run. The optional lists
// must either be empty or match the length of AudioFiles.
type BatchRequest struct {
	AudioFiles           []string
	OutputFiles          []string
	SourceAlignmentFiles []string
	TargetAlignmentFiles []string
	TargetPitchFiles     []string
	ConstantStretch      float64

	// Workers is the pool size; 0 means available CPU parallelism.
	Workers int
}

// ItemFailure records one failed batch item with enough context to retry it.
type ItemFailure struct {
	Index     int
	AudioFile string
	Err       error
}

// Summary is the outcome of a batch run under the collect-all policy: every
// item is attempted, failures are isolated and reported together at the end.
type Summary struct {
	Completed int
	Failures  []ItemFailure
}

// Failed reports whether any item failed.
func (s Summary) Failed() bool { return len(s.Failures) > 0 }

// items expands the parallel lists into per-item requests. Arity is checked
// before any file I/O happens.
func (b BatchRequest) items() ([]FileRequest, error) {
	n := len(b.AudioFiles)
	if n == 0 {
		return nil, fmt.Errorf("%w: no audio files", ErrConfiguration)
	}
	check := func(name string, list []string) error {
		if len(list) != 0 && len(list) != n {
			return fmt.Errorf("%w: %d audio files but %d %s", ErrConfiguration, n, len(list), name)
		}
		return nil
	}
	if err := check("output files", b.OutputFiles); err != nil {
		return nil, err
	}
	if len(b.OutputFiles) == 0 {
		return nil, fmt.Errorf("%w: no output files", ErrConfiguration)
	}
	if err := check("source alignment files", b.SourceAlignmentFiles); err != nil {
		return nil, err
	}
	if err := check("target alignment files", b.TargetAlignmentFiles); err != nil {
		return nil, err
	}
	if err := check("target pitch files", b.TargetPitchFiles); err != nil {
		return nil, err
	}

	at := func(list []string, i int) string {
		if len(list) == 0 {
			return ""
		}
		return list[i]
	}

	reqs := make([]FileRequest, n)
	for i := range reqs {
		reqs[i] = FileRequest{
			AudioFile:           b.AudioFiles[i],
			SourceAlignmentFile: at(b.SourceAlignmentFiles, i),
			TargetAlignmentFile: at(b.TargetAlignmentFiles, i),
			TargetPitchFile:     at(b.TargetPitchFiles, i),
			ConstantStretch:     b.ConstantStretch,
			OutputFile:          b.OutputFiles[i],
		}
		if err := reqs[i].validate(); err != nil {
			return nil, err
		}
	}
	return reqs, nil
}

// FromFilesToFiles processes every batch item independently across a fixed
// pool of workers. Items share no mutable state; one item's failure never
// blocks its siblings. Cancelling ctx stops dispatch of not-yet-started
// items while in-flight items complete.
func (p *Pipeline) FromFilesToFiles(ctx context.Context, req BatchRequest) (Summary, error) {
	if err := p.Bounds.Validate(); err != nil {
		return Summary{}, err
	}
	items, err := req.items()
	if err != nil {
		return Summary{}, err
	}

	workers := req.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(items) {
		workers = len(items)
	}

	type indexed struct {
		index int
		req   FileRequest
	}
	jobs := make(chan indexed)
	results := make(chan ItemFailure, len(items))

	var wg sync.WaitGroup
	var completed int
	var mu sync.Mutex

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log := p.Log.With().Int("worker", id).Logger()
			for job := range jobs {
				start := time.Now()
				err := p.FromFileToFile(ctx, job.req)
				metrics.ItemDuration.Observe(time.Since(start).Seconds())
				if err != nil {
					metrics.ItemsTotal.WithLabelValues("failed").Inc()
					log.Warn().Err(err).Str("audio_file", job.req.AudioFile).Msg("item failed")
					results <- ItemFailure{Index: job.index, AudioFile: job.req.AudioFile, Err: err}
					continue
				}
				metrics.ItemsTotal.WithLabelValues("completed").Inc()
				log.Debug().
					Str("audio_file", job.req.AudioFile).
					Str("output_file", job.req.OutputFile).
					Dur("elapsed", time.Since(start)).
					Msg("item complete")
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}(w)
	}

	metrics.QueueDepth.Set(float64(len(items)))
dispatch:
	for i, item := range items {
		// Checked before the send so a cancelled batch never dispatches
		// further items.
		if ctx.Err() != nil {
			for j := i; j < len(items); j++ {
				results <- ItemFailure{Index: j, AudioFile: items[j].AudioFile, Err: ctx.Err()}
			}
			break dispatch
		}
		select {
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				results <- ItemFailure{Index: j, AudioFile: items[j].AudioFile, Err: ctx.Err()}
			}
			break dispatch
		case jobs <- indexed{index: i, req: item}:
			metrics.QueueDepth.Dec()
		}
	}
	close(jobs)
	wg.Wait()
	close(results)
	metrics.QueueDepth.Set(0)

	summary := Summary{Completed: completed}
	for f := range results {
		summary.Failures = append(summary.Failures, f)
	}
	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Index < summary.Failures[j].Index
	})

	p.Log.Info().
		Int("completed", summary.Completed).
		Int("failed", len(summary.Failures)).
		Msg("batch finished")

	return summary, nil
}
