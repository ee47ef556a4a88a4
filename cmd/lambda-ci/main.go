package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamihamza/lambda-ci/internal/builder"
	"github.com/adamihamza/lambda-ci/internal/config"
	"github.com/adamihamza/lambda-ci/internal/logwatch"
	"github.com/adamihamza/lambda-ci/internal/pipeline"
	"github.com/adamihamza/lambda-ci/internal/platform/env"
	platformstore "github.com/adamihamza/lambda-ci/internal/platform/objectstore"
	"github.com/adamihamza/lambda-ci/internal/registry"
	"github.com/adamihamza/lambda-ci/internal/report"
	"github.com/adamihamza/lambda-ci/internal/storage/objectstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	workDir, err := os.MkdirTemp("", "lambda-ci-")
	if err != nil {
		logger.Error("create working directory failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	storeCfg, err := platformstore.ConfigFromEnv(cfg.Bucket)
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := platformstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	if err := platformstore.CheckBucket(ctx, storeClient, storeCfg); err != nil {
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	store, err := objectstore.NewMinioStoreWithClient(storeClient, storeCfg.Bucket)
	if err != nil {
		logger.Error("object store init failed", "error", err)
		os.Exit(2)
	}

	fetcher, err := builder.NewDockerFetcher(env.String("LAMBDACI_DOCKER_BIN", "docker"))
	if err != nil {
		logger.Error("build toolchain unavailable", "error", err)
		os.Exit(1)
	}
	artifactBuilder, err := builder.NewBuilder(fetcher, workDir, cfg.SrcPath, cfg.ManifestPath, cfg.FunctionRuntime)
	if err != nil {
		logger.Error("invalid build configuration", "error", err)
		os.Exit(2)
	}

	lambdaRegistry, err := registry.NewLambdaRegistryFromEnv(ctx, cfg.AWSProfile)
	if err != nil {
		logger.Error("registry client init failed", "error", err)
		os.Exit(1)
	}
	retrying, err := registry.NewRetryingRegistry(lambdaRegistry, cfg.RetryAttempts, cfg.RetryDelay, logger)
	if err != nil {
		logger.Error("retry wrapper init failed", "error", err)
		os.Exit(2)
	}

	params := pipeline.Params{
		FunctionName: cfg.FunctionName,
		Runtime:      cfg.FunctionRuntime,
		Alias:        cfg.AliasName,
		LayerName:    cfg.LayerName,
		RevisionTag:  cfg.RevisionTag,
		Bucket:       cfg.Bucket,
		ManifestPath: cfg.ManifestPath,
		WorkDir:      workDir,
	}
	run, err := pipeline.New(store, retrying, artifactBuilder, logger, params)
	if err != nil {
		logger.Error("invalid pipeline parameters", "error", err)
		os.Exit(2)
	}

	logger.Info("starting deployment run",
		"function", cfg.FunctionName, "revision", cfg.RevisionTag, "work_dir", workDir)

	result, err := run.Run(ctx)
	if err != nil {
		var fetchErr *builder.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Output != "" {
			fmt.Fprintln(os.Stderr, fetchErr.Output)
		}
		logger.Error("deployment run failed", "error", err)
		os.Exit(1)
	}

	lang, err := builder.LanguageForRuntime(cfg.FunctionRuntime)
	if err != nil {
		logger.Error("invalid runtime", "error", err)
		os.Exit(2)
	}
	report.Render(os.Stdout, report.Summary{
		FunctionName: cfg.FunctionName,
		LayerName:    cfg.LayerName,
		Bucket:       cfg.Bucket,
		RevisionTag:  cfg.RevisionTag,
		Keys:         pipeline.NewKeys(cfg.FunctionName, lang.Descriptor()),
		Result:       result,
	})

	if cfg.WatchLogs && !result.Skipped {
		watcher, err := logwatch.NewFromEnv(ctx, cfg.AWSProfile)
		if err != nil {
			logger.Error("log watcher init failed", "error", err)
			os.Exit(1)
		}
		logger.Info("watching function log stream", "version", result.PublishedVersion)
		if err := watcher.Watch(ctx, cfg.FunctionName, result.PublishedVersion, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("log watch failed", "error", err)
			os.Exit(1)
		}
	}
}
