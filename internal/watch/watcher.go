// Package watch monitors a directory for incoming audio and vocodes each new
// file with a fixed set of batch parameters. It is the unattended
// counterpart to the one-shot batch entry point.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/psola/internal/metrics"
	"github.com/snarg/psola/internal/vocode"
)

// debounceDelay coalesces rapid Create+Write events on the same file and
// gives the writer time to finish before we read.
const debounceDelay = 500 * time.Millisecond

// Options configures a Watcher. Every processed file uses the same stretch
// and pitch parameters; per-file alignment pairs make no sense for files that
// appear unannounced.
type Options struct {
	WatchDir  string
	OutputDir string

	// ConstantStretch of 0 means no time-stretching.
	ConstantStretch float64
	// TargetPitchFile applies one contour to every incoming file; empty
	// means no pitch-shifting.
	TargetPitchFile string

	Log zerolog.Logger
}

// Watcher vocodes new .wav files as they appear in a directory.
type Watcher struct {
	pipeline *vocode.Pipeline
	opts     Options
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	// stopping is set under debounceMu so no new work starts once Stop
	// begins waiting.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
	stopping       bool

	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// New creates a Watcher over the given pipeline.
func New(p *vocode.Pipeline, opts Options) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		pipeline:       p,
		opts:           opts,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Stats reports watcher progress for the status endpoint.
type Stats struct {
	WatchDir  string `json:"watch_dir"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	Skipped   int64  `json:"skipped"`
}

// Stats returns current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		WatchDir:  w.opts.WatchDir,
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Skipped:   w.skipped.Load(),
	}
}

// Start begins watching. Files already present are not backfilled; the
// watcher only handles arrivals.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	if err := fw.Add(w.opts.WatchDir); err != nil {
		fw.Close()
		return err
	}

	w.wg.Add(1)
	go w.watchLoop()

	w.log.Info().
		Str("watch_dir", w.opts.WatchDir).
		Str("output_dir", w.opts.OutputDir).
		Msg("watcher started")
	return nil
}

// Stop closes the watcher. In-flight files complete before Stop returns;
// pending debounce timers are dropped.
func (w *Watcher) Stop() {
	w.debounceMu.Lock()
	w.stopping = true
	for path, t := range w.debounceTimers {
		t.Stop()
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()

	if w.watcher != nil {
		w.watcher.Close()
	}

	w.wg.Wait()
	w.cancel()
	w.log.Info().
		Int64("processed", w.processed.Load()).
		Int64("failed", w.failed.Load()).
		Msg("watcher stopped")
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isWAV(event.Name) {
				w.skipped.Add(1)
				metrics.WatchFilesTotal.WithLabelValues("skipped").Inc()
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.stopping {
		return
	}
	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(debounceDelay)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		// The WaitGroup add happens under debounceMu: either it precedes
		// Stop setting stopping (and Stop waits for this file), or Stop got
		// there first and the file is dropped.
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		if w.stopping {
			w.debounceMu.Unlock()
			return
		}
		w.wg.Add(1)
		w.debounceMu.Unlock()

		defer w.wg.Done()
		w.processFile(path)
	})
}

func (w *Watcher) processFile(path string) {
	out := OutputPath(w.opts.OutputDir, path)
	err := w.pipeline.FromFileToFile(w.ctx, vocode.FileRequest{
		AudioFile:       path,
		ConstantStretch: w.opts.ConstantStretch,
		TargetPitchFile: w.opts.TargetPitchFile,
		OutputFile:      out,
	})
	if err != nil {
		w.failed.Add(1)
		metrics.WatchFilesTotal.WithLabelValues("failed").Inc()
		w.log.Warn().Err(err).Str("audio_file", path).Msg("vocoding failed")
		return
	}
	w.processed.Add(1)
	metrics.WatchFilesTotal.WithLabelValues("processed").Inc()
	w.log.Info().Str("audio_file", path).Str("output_file", out).Msg("vocoded")
}

// OutputPath maps an incoming file to its destination in the output
// directory, keeping the base name.
func OutputPath(outputDir, inputPath string) string {
	return filepath.Join(outputDir, filepath.Base(inputPath))
}

func isWAV(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false // temp files from atomic writes
	}
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// EnsureDirs verifies the watch directory exists and creates the output
// directory if needed.
func EnsureDirs(opts Options) error {
	if _, err := os.Stat(opts.WatchDir); err != nil {
		return err
	}
	return os.MkdirAll(opts.OutputDir, 0o755)
}
