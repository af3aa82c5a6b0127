// Package storage writes vocoded output buffers to their destination, either
// the local filesystem or an S3-compatible object store.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/psola/internal/audiofile"
	"github.com/snarg/psola/internal/config"
)

// Sink stores one finished output buffer at the given destination path.
// Implementations must only produce complete files: a failed save leaves
// nothing behind at the destination.
type Sink interface {
	Save(ctx context.Context, path string, buf audiofile.Buffer) error

	// Type returns "local", "s3", or "routed".
	Type() string
}

// New creates a Sink based on config. Without S3 configured all outputs are
// local; with S3 configured, destinations of the form s3://bucket/key upload
// and everything else stays local.
func New(cfg config.S3Config, log zerolog.Logger) (Sink, error) {
	local := NewLocalSink()
	if !cfg.Enabled() {
		return local, nil
	}

	s3sink, err := NewS3Sink(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3sink.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return &RoutedSink{local: local, s3: s3sink}, nil
}

// RoutedSink dispatches per destination path: s3:// URLs upload, everything
// else writes locally.
type RoutedSink struct {
	local *LocalSink
	s3    *S3Sink
}

func (r *RoutedSink) Save(ctx context.Context, path string, buf audiofile.Buffer) error {
	if IsS3Path(path) {
		return r.s3.Save(ctx, path, buf)
	}
	return r.local.Save(ctx, path, buf)
}

func (r *RoutedSink) Type() string { return "routed" }

// IsS3Path reports whether a destination names an object store location.
func IsS3Path(path string) bool {
	return strings.HasPrefix(path, "s3://")
}
