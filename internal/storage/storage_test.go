package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/snarg/psola/internal/audiofile"
)

func TestIsS3Path(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"s3://bucket/out.wav", true},
		{"/data/out.wav", false},
		{"out.wav", false},
		{"s3:/bucket/out.wav", false},
	}
	for _, tc := range cases {
		if got := IsS3Path(tc.path); got != tc.want {
			t.Errorf("IsS3Path(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestLocalSink_Save(t *testing.T) {
	sink := NewLocalSink()
	path := filepath.Join(t.TempDir(), "out.wav")
	buf := audiofile.Buffer{Samples: make([]float64, 800), Rate: 8000}

	if err := sink.Save(context.Background(), path, buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := audiofile.ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if got.Rate != 8000 || len(got.Samples) != 800 {
		t.Errorf("round trip = %d samples @ %d Hz, want 800 @ 8000", len(got.Samples), got.Rate)
	}
}

func TestS3Sink_Resolve(t *testing.T) {
	s := &S3Sink{bucket: "default-bucket", prefix: "vocoded"}

	t.Run("explicit_bucket", func(t *testing.T) {
		bucket, key, err := s.resolve("s3://other/path/out.wav")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if bucket != "other" || key != "vocoded/path/out.wav" {
			t.Errorf("resolve = %q/%q, want other/vocoded/path/out.wav", bucket, key)
		}
	})

	t.Run("bare_key", func(t *testing.T) {
		bucket, key, err := s.resolve("out.wav")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if bucket != "default-bucket" || key != "vocoded/out.wav" {
			t.Errorf("resolve = %q/%q, want default-bucket/vocoded/out.wav", bucket, key)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, _, err := s.resolve("s3://bucketonly"); err == nil {
			t.Error("resolve of s3://bucketonly should fail")
		}
	})
}
