package storage

import (
	"context"

	"github.com/snarg/psola/internal/audiofile"
)

// LocalSink writes output WAVs to the local filesystem.
type LocalSink struct{}

// NewLocalSink creates a local filesystem sink.
func NewLocalSink() *LocalSink { return &LocalSink{} }

// Save writes the buffer to path. The underlying write is atomic (temp file
// + rename), so no partial output file survives a failure.
func (s *LocalSink) Save(ctx context.Context, path string, buf audiofile.Buffer) error {
	return audiofile.WriteWAV(path, buf)
}

func (s *LocalSink) Type() string { return "local" }
