package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/psola/internal/api"
	"github.com/snarg/psola/internal/config"
	"github.com/snarg/psola/internal/pitch"
	"github.com/snarg/psola/internal/praat"
	"github.com/snarg/psola/internal/storage"
	"github.com/snarg/psola/internal/vocode"
	"github.com/snarg/psola/internal/watch"
)

var version = "dev"

// fileList accepts repeated flags and comma-separated values, so both
// "--audio_files a.wav --audio_files b.wav" and "--audio_files a.wav,b.wav"
// produce the same list.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*f = append(*f, part)
		}
	}
	return nil
}

type cliArgs struct {
	audioFiles           fileList
	outputFiles          fileList
	sourceAlignmentFiles fileList
	targetAlignmentFiles fileList
	targetPitchFiles     fileList
	constantStretch      float64
	fmin                 float64
	fmax                 float64

	watchDir  string
	outputDir string

	overrides   config.Overrides
	showVersion bool
}

func parseArgs() *cliArgs {
	var a cliArgs

	flag.Var(&a.audioFiles, "audio_files", "input WAV files (repeatable or comma-separated)")
	flag.Var(&a.outputFiles, "output_files", "output WAV paths, one per input (local path or s3://bucket/key)")
	flag.Var(&a.sourceAlignmentFiles, "source_alignment_files", "source phoneme alignment JSON files, one per input")
	flag.Var(&a.targetAlignmentFiles, "target_alignment_files", "target phoneme alignment JSON files, one per input")
	flag.Var(&a.targetPitchFiles, "target_pitch_files", "target pitch contour .npy files, one per input")
	flag.Float64Var(&a.constantStretch, "constant_stretch", 0, "uniform time-stretch factor (>1 shortens, <1 lengthens)")
	flag.Float64Var(&a.fmin, "fmin", 40, "minimum frequency in Hz for pitch analysis")
	flag.Float64Var(&a.fmax, "fmax", 500, "maximum frequency in Hz for pitch analysis")

	flag.StringVar(&a.watchDir, "watch_dir", "", "watch this directory and vocode new WAV files as they appear")
	flag.StringVar(&a.outputDir, "output_dir", "", "output directory for watch mode")

	flag.StringVar(&a.overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&a.overrides.PraatBin, "praat_bin", "", "praat binary (overrides PRAAT_BIN)")
	flag.StringVar(&a.overrides.TmpDir, "tmpdir", "", "scratch directory for engine passes (overrides PSOLA_TMPDIR)")
	flag.IntVar(&a.overrides.Workers, "workers", 0, "worker pool size, 0 = available CPUs (overrides PSOLA_WORKERS)")
	flag.StringVar(&a.overrides.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&a.overrides.HTTPAddr, "http_addr", "", "status server listen address for watch mode (overrides HTTP_ADDR)")
	flag.BoolVar(&a.showVersion, "version", false, "print version and exit")

	flag.Parse()
	return &a
}

func main() {
	os.Exit(run())
}

// Exit codes: 0 all items succeeded, 1 one or more items failed,
// 2 configuration error.
func run() int {
	args := parseArgs()

	if args.showVersion {
		fmt.Println(version)
		return 0
	}

	cfg, err := config.Load(args.overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Error().Err(err).Msg("failed to load config")
		return 2
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("psola starting")

	if !praat.Check(cfg.PraatBin) {
		log.Warn().Str("bin", cfg.PraatBin).Msg("praat binary not found in PATH; vocoding will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := storage.New(cfg.S3, log.With().Str("component", "storage").Logger())
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize output sink")
		return 2
	}

	pipeline := &vocode.Pipeline{
		Engine: praat.New(cfg.PraatBin, cfg.TmpDir, log.With().Str("component", "praat").Logger()),
		Bounds: pitch.Bounds{Min: args.fmin, Max: args.fmax},
		Sink:   sink,
		Log:    log.With().Str("component", "vocode").Logger(),
	}

	if args.watchDir != "" {
		return runWatch(ctx, cfg, pipeline, args, log)
	}
	return runBatch(ctx, cfg, pipeline, args, log)
}

func runBatch(ctx context.Context, cfg *config.Config, pipeline *vocode.Pipeline, args *cliArgs, log zerolog.Logger) int {
	if len(args.audioFiles) == 0 {
		log.Error().Msg("no input files; pass --audio_files or --watch_dir")
		flag.Usage()
		return 2
	}

	summary, err := pipeline.FromFilesToFiles(ctx, vocode.BatchRequest{
		AudioFiles:           args.audioFiles,
		OutputFiles:          args.outputFiles,
		SourceAlignmentFiles: args.sourceAlignmentFiles,
		TargetAlignmentFiles: args.targetAlignmentFiles,
		TargetPitchFiles:     args.targetPitchFiles,
		ConstantStretch:      args.constantStretch,
		Workers:              cfg.Workers,
	})
	if err != nil {
		// A top-level error from the batch means validation failed before
		// any item was dispatched: bad arguments or bad bounds, both
		// configuration errors.
		log.Error().Err(err).Msg("batch rejected")
		if errors.Is(err, vocode.ErrConfiguration) || errors.Is(err, pitch.ErrInvalidFrequencyBounds) {
			return 2
		}
		return 1
	}

	if summary.Failed() {
		for _, f := range summary.Failures {
			log.Error().Int("index", f.Index).Str("audio_file", f.AudioFile).Err(f.Err).Msg("item failed")
		}
		return 1
	}
	return 0
}

func runWatch(ctx context.Context, cfg *config.Config, pipeline *vocode.Pipeline, args *cliArgs, log zerolog.Logger) int {
	if args.outputDir == "" {
		log.Error().Msg("watch mode requires --output_dir")
		return 2
	}
	if len(args.targetAlignmentFiles) > 0 || len(args.sourceAlignmentFiles) > 0 {
		log.Error().Msg("alignment-based stretching is not supported in watch mode; use --constant_stretch")
		return 2
	}

	opts := watch.Options{
		WatchDir:        args.watchDir,
		OutputDir:       args.outputDir,
		ConstantStretch: args.constantStretch,
		Log:             log,
	}
	if len(args.targetPitchFiles) == 1 {
		opts.TargetPitchFile = args.targetPitchFiles[0]
	} else if len(args.targetPitchFiles) > 1 {
		log.Error().Msg("watch mode accepts at most one --target_pitch_files contour")
		return 2
	}

	if err := watch.EnsureDirs(opts); err != nil {
		log.Error().Err(err).Msg("failed to prepare watch directories")
		return 2
	}

	watcher := watch.New(pipeline, opts)
	if err := watcher.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start watcher")
		return 2
	}
	defer watcher.Stop()

	srv := api.NewServer(cfg, watcher.Stats, version, log.With().Str("component", "http").Logger())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("psola stopped")
	return 0
}
