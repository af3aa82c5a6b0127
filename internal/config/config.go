package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	PraatBin string `env:"PRAAT_BIN" envDefault:"praat"`
	TmpDir   string `env:"PSOLA_TMPDIR"`
	Workers  int    `env:"PSOLA_WORKERS"` // 0 = available CPU parallelism
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Status server (watch mode only)
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`

	S3 S3Config `envPrefix:"S3_"`
}

// S3Config configures the optional S3 output sink. Outputs stay local unless
// a bucket is set.
type S3Config struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Prefix    string `env:"PREFIX"`
}

// Enabled reports whether S3 output is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	PraatBin string
	TmpDir   string
	Workers  int
	LogLevel string
	HTTPAddr string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.PraatBin != "" {
		cfg.PraatBin = overrides.PraatBin
	}
	if overrides.TmpDir != "" {
		cfg.TmpDir = overrides.TmpDir
	}
	if overrides.Workers > 0 {
		cfg.Workers = overrides.Workers
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}

	return cfg, nil
}
