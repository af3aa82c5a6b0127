package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/snarg/psola/internal/audiofile"
	"github.com/snarg/psola/internal/config"
)

// S3Sink uploads output WAVs to an S3-compatible object store.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Sink creates an S3 sink from config.
func NewS3Sink(cfg config.S3Config, log zerolog.Logger) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Sink{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "s3-sink").Logger(),
	}, nil
}

// HeadBucket checks that the configured bucket exists and credentials are valid.
func (s *S3Sink) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &s.bucket,
	})
	return err
}

// Save encodes the buffer and uploads it. The destination may name a bucket
// explicitly (s3://bucket/key) or be a bare key into the configured bucket.
func (s *S3Sink) Save(ctx context.Context, path string, buf audiofile.Buffer) error {
	bucket, key, err := s.resolve(path)
	if err != nil {
		return err
	}

	data, err := audiofile.Encode(buf)
	if err != nil {
		return fmt.Errorf("encode for upload: %w", err)
	}

	contentType := "audio/wav"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}

	s.log.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(data)).Msg("uploaded output")
	return nil
}

func (s *S3Sink) Type() string { return "s3" }

// resolve splits an s3:// destination into bucket and key, applying the
// configured defaults.
func (s *S3Sink) resolve(path string) (bucket, key string, err error) {
	if !IsS3Path(path) {
		bucket = s.bucket
		key = path
	} else {
		rest := strings.TrimPrefix(path, "s3://")
		bucket, key, _ = strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return "", "", fmt.Errorf("malformed S3 destination %q", path)
		}
	}
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return bucket, key, nil
}
