package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adamihamza/lambda-ci/internal/platform/env"
)

// Config describes the S3-compatible endpoint holding deployment
// artifacts and the cached package descriptor.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

func ConfigFromEnv(bucket string) (Config, error) {
	useSSL, err := env.Bool("LAMBDACI_S3_USE_SSL", true)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("LAMBDACI_S3_ENDPOINT", "s3.amazonaws.com"),
		AccessKey: env.String("AWS_ACCESS_KEY_ID", ""),
		SecretKey: env.String("AWS_SECRET_ACCESS_KEY", ""),
		Region:    env.String("AWS_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    bucket,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
