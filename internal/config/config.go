// Package config loads the server's environment-driven configuration, read
// once in cmd/repod/main.go and copied into the api.Server the handlers
// share by reference.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config holds every environment-derived setting the server needs at
// startup. Nothing here is mutated after Load returns.
type Config struct {
	DatabaseURL     string
	BucketURL       string
	BucketName      string
	BootstrapToken  string
	TokenSecret     string
	ByHashRetention time.Duration
	ListenAddr      string
}

const defaultByHashRetention = 24 * time.Hour

// Load reads the ATTUNE_* environment variables, applying the same defaults
// and required-variable checks as the original server's startup sequence.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:     os.Getenv("ATTUNE_DATABASE_URL"),
		BucketURL:       os.Getenv("ATTUNE_S3_BUCKET_NAME"),
		BootstrapToken:  os.Getenv("ATTUNE_API_TOKEN"),
		TokenSecret:     os.Getenv("ATTUNE_TOKEN_SECRET"),
		ByHashRetention: defaultByHashRetention,
		ListenAddr:      envOrDefault("ATTUNE_LISTEN_ADDR", ":8080"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: ATTUNE_DATABASE_URL is required")
	}
	if cfg.BucketURL == "" {
		return Config{}, fmt.Errorf("config: ATTUNE_S3_BUCKET_NAME is required")
	}
	cfg.BucketName = bucketNameFromURL(cfg.BucketURL)
	if cfg.TokenSecret == "" {
		return Config{}, fmt.Errorf("config: ATTUNE_TOKEN_SECRET is required")
	}

	if raw := os.Getenv("ATTUNE_BYHASH_RETENTION"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid ATTUNE_BYHASH_RETENTION %q: %w", raw, err)
		}
		cfg.ByHashRetention = d
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// bucketNameFromURL extracts the bucket name out of a gocloud.dev/blob URL
// such as "s3://my-bucket?region=us-east-1". ATTUNE_S3_BUCKET_NAME historically
// held a bare bucket name; if parsing as a URL fails to yield a host, the raw
// value is assumed to already be the bucket name.
func bucketNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
