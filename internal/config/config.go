// Package config resolves the pipeline's run parameters from command
// line flags, LAMBDACI_* environment variables, and an optional YAML
// file, in that order of precedence.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adamihamza/lambda-ci/internal/platform/env"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bucket          string        `yaml:"bucket"`
	FunctionName    string        `yaml:"function_name"`
	FunctionRuntime string        `yaml:"function_runtime"`
	AliasName       string        `yaml:"alias_name"`
	LayerName       string        `yaml:"layer_name"`
	SrcPath         string        `yaml:"src_path"`
	ManifestPath    string        `yaml:"manifest_path"`
	RevisionTag     string        `yaml:"revision_tag"`
	AWSProfile      string        `yaml:"aws_profile"`
	WatchLogs       bool          `yaml:"watch_logs"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

func defaults() Config {
	return Config{
		FunctionRuntime: "python3.9",
		AliasName:       "latest",
		SrcPath:         ".",
		ManifestPath:    "requirements.txt",
		RetryAttempts:   10,
		RetryDelay:      3 * time.Second,
	}
}

// Load resolves configuration from args (flags excluding the program
// name), the environment, and an optional --config YAML file.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("lambda-ci", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	fs.String("app-s3-bucket", "", "s3 bucket holding application code and dependencies")
	fs.String("function-name", "", "lambda function name")
	fs.String("function-runtime", "", "lambda function runtime (eg: python3.9)")
	fs.String("function-alias-name", "", "lambda alias name (eg: latest)")
	fs.String("function-layer-name", "", "lambda layer name (eg: demo-lambda-dependencies)")
	fs.String("app-src-path", "", "function sources directory to archive")
	fs.String("app-packages-descriptor-path", "", "package descriptor path (eg: requirements.txt)")
	fs.String("source-version", "", "unique revision id (eg: commit sha or tag)")
	fs.String("aws-profile-name", "", "aws shared config profile")
	fs.Bool("watch-log-stream", false, "tail the function log stream after publish")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if path := firstNonEmpty(*configPath, env.String("LAMBDACI_CONFIG", "")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := applyFlags(fs, &cfg); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.LayerName) == "" {
		cfg.LayerName = cfg.FunctionName + "-deps"
	}
	if strings.TrimSpace(cfg.RevisionTag) == "" {
		cfg.RevisionTag = NewRevisionTag()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Bucket = env.String("LAMBDACI_S3_BUCKET", cfg.Bucket)
	cfg.FunctionName = env.String("LAMBDACI_FUNCTION_NAME", cfg.FunctionName)
	cfg.FunctionRuntime = env.String("LAMBDACI_FUNCTION_RUNTIME", cfg.FunctionRuntime)
	cfg.AliasName = env.String("LAMBDACI_ALIAS_NAME", cfg.AliasName)
	cfg.LayerName = env.String("LAMBDACI_LAYER_NAME", cfg.LayerName)
	cfg.SrcPath = env.String("LAMBDACI_SRC_PATH", cfg.SrcPath)
	cfg.ManifestPath = env.String("LAMBDACI_MANIFEST_PATH", cfg.ManifestPath)
	cfg.RevisionTag = env.String("LAMBDACI_REVISION_TAG", cfg.RevisionTag)
	cfg.AWSProfile = env.String("LAMBDACI_AWS_PROFILE", cfg.AWSProfile)

	watch, err := env.Bool("LAMBDACI_WATCH_LOGS", cfg.WatchLogs)
	if err != nil {
		return err
	}
	cfg.WatchLogs = watch
	attempts, err := env.Int("LAMBDACI_RETRY_ATTEMPTS", cfg.RetryAttempts)
	if err != nil {
		return err
	}
	cfg.RetryAttempts = attempts
	delay, err := env.Duration("LAMBDACI_RETRY_DELAY", cfg.RetryDelay)
	if err != nil {
		return err
	}
	cfg.RetryDelay = delay
	return nil
}

func applyFlags(fs *pflag.FlagSet, cfg *Config) error {
	apply := map[string]*string{
		"app-s3-bucket":                &cfg.Bucket,
		"function-name":                &cfg.FunctionName,
		"function-runtime":             &cfg.FunctionRuntime,
		"function-alias-name":          &cfg.AliasName,
		"function-layer-name":          &cfg.LayerName,
		"app-src-path":                 &cfg.SrcPath,
		"app-packages-descriptor-path": &cfg.ManifestPath,
		"source-version":               &cfg.RevisionTag,
		"aws-profile-name":             &cfg.AWSProfile,
	}
	var err error
	for name, target := range apply {
		if fs.Changed(name) {
			if *target, err = fs.GetString(name); err != nil {
				return err
			}
		}
	}
	if fs.Changed("watch-log-stream") {
		if cfg.WatchLogs, err = fs.GetBool("watch-log-stream"); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("s3 bucket is required")
	}
	if strings.TrimSpace(c.FunctionName) == "" {
		return errors.New("function name is required")
	}
	if strings.TrimSpace(c.FunctionRuntime) == "" {
		return errors.New("function runtime is required")
	}
	if strings.TrimSpace(c.AliasName) == "" {
		return errors.New("alias name is required")
	}
	if strings.TrimSpace(c.ManifestPath) == "" {
		return errors.New("package descriptor path is required")
	}
	if c.RetryAttempts <= 0 {
		return errors.New("retry attempts must be positive")
	}
	if c.RetryDelay <= 0 {
		return errors.New("retry delay must be positive")
	}
	return nil
}

// NewRevisionTag generates a caller-free revision id: 32 upper-case
// hex characters, matching the historical tag format.
func NewRevisionTag() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:]))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
