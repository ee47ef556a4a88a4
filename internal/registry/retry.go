package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	DefaultRetryAttempts = 10
	DefaultRetryDelay    = 3 * time.Second
)

// RetryingRegistry decorates a Registry, retrying every mutation that
// fails with a conflict: fixed delay, bounded attempts, then fatal.
// Reads pass through untouched. Non-conflict errors are never retried.
type RetryingRegistry struct {
	inner    Registry
	attempts int
	delay    time.Duration
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRetryingRegistry(inner Registry, attempts int, delay time.Duration, logger *slog.Logger) (*RetryingRegistry, error) {
	if inner == nil {
		return nil, errors.New("registry is required")
	}
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RetryingRegistry{
		inner:    inner,
		attempts: attempts,
		delay:    delay,
		logger:   logger,
		sleep:    sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *RetryingRegistry) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return err
		}
		if attempt == r.attempts {
			break
		}
		r.logger.Info("update still in progress, retrying",
			"operation", op, "attempt", attempt, "delay", r.delay)
		if serr := r.sleep(ctx, r.delay); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("%s: max retries (%d) exceeded: %w", op, r.attempts, err)
}

func (r *RetryingRegistry) GetFunction(ctx context.Context, name, qualifier string) (FunctionState, error) {
	return r.inner.GetFunction(ctx, name, qualifier)
}

func (r *RetryingRegistry) LatestLayer(ctx context.Context, layerName string) (LayerState, error) {
	return r.inner.LatestLayer(ctx, layerName)
}

func (r *RetryingRegistry) PublishLayerVersion(ctx context.Context, in PublishLayerInput) (LayerVersion, error) {
	var out LayerVersion
	err := r.do(ctx, "publish layer version", func() error {
		var ferr error
		out, ferr = r.inner.PublishLayerVersion(ctx, in)
		return ferr
	})
	return out, err
}

func (r *RetryingRegistry) AttachLayer(ctx context.Context, functionName, layerARN string) error {
	return r.do(ctx, "attach layer", func() error {
		return r.inner.AttachLayer(ctx, functionName, layerARN)
	})
}

func (r *RetryingRegistry) UpdateFunctionCode(ctx context.Context, functionName, bucket, key string) error {
	return r.do(ctx, "update function code", func() error {
		return r.inner.UpdateFunctionCode(ctx, functionName, bucket, key)
	})
}

func (r *RetryingRegistry) PublishVersion(ctx context.Context, functionName, description string) (string, error) {
	var version string
	err := r.do(ctx, "publish version", func() error {
		var ferr error
		version, ferr = r.inner.PublishVersion(ctx, functionName, description)
		return ferr
	})
	return version, err
}

func (r *RetryingRegistry) UpdateAlias(ctx context.Context, functionName, alias, version, description string) error {
	return r.do(ctx, "update alias", func() error {
		return r.inner.UpdateAlias(ctx, functionName, alias, version, description)
	})
}
