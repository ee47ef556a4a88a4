// Package registry models the remote function platform: one mutable
// live configuration, append-only published versions, independently
// versioned dependency layers, and a movable alias.
package registry

import (
	"context"
	"errors"
	"strings"
)

// ErrConflict marks a transient failure: the remote resource is still
// settling a previous update. Callers retry these; everything else
// propagates immediately.
var ErrConflict = errors.New("resource update in progress")

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// FunctionState is the registry's live view of a function, read once
// at run start and used only as the change-detection baseline.
type FunctionState struct {
	Version     string
	CodeSha256  string
	RevisionTag string
	ARN         string
}

// Region extracts the deployment region from the function ARN.
func (s FunctionState) Region() string {
	parts := strings.Split(s.ARN, ":")
	if len(parts) > 3 {
		return parts[3]
	}
	return ""
}

// LayerState is the most recent version of a named layer. The zero
// value means the layer has never been published.
type LayerState struct {
	Version     int64
	RevisionTag string
}

// LayerVersion identifies an immutable just-published layer version.
type LayerVersion struct {
	Version int64
	ARN     string
}

type PublishLayerInput struct {
	LayerName         string
	Description       string
	Bucket            string
	Key               string
	CompatibleRuntime string
}

// Registry is the deployment target surface the pipeline consumes.
// Mutations may fail with a conflict-classified error while the
// platform settles a prior update; see RetryingRegistry.
type Registry interface {
	GetFunction(ctx context.Context, name, qualifier string) (FunctionState, error)
	LatestLayer(ctx context.Context, layerName string) (LayerState, error)

	PublishLayerVersion(ctx context.Context, in PublishLayerInput) (LayerVersion, error)
	AttachLayer(ctx context.Context, functionName, layerARN string) error
	UpdateFunctionCode(ctx context.Context, functionName, bucket, key string) error
	PublishVersion(ctx context.Context, functionName, description string) (string, error)
	UpdateAlias(ctx context.Context, functionName, alias, version, description string) error
}
