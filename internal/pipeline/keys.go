package pipeline

import (
	"fmt"

	"github.com/adamihamza/lambda-ci/internal/builder"
)

const keyPrefix = "lambda-ci"

// Keys lays out the per-function namespace inside the artifact
// bucket: a stable latest/ path overwritten every deploy (the next
// run's comparison baseline) and an immutable per-revision path kept
// for audit and manual rollback.
type Keys struct {
	prefix     string
	descriptor string
}

func NewKeys(functionName, descriptorName string) Keys {
	return Keys{
		prefix:     fmt.Sprintf("%s/%s", keyPrefix, functionName),
		descriptor: descriptorName,
	}
}

// Descriptor is the cache key of the previously deployed manifest.
func (k Keys) Descriptor() string {
	return fmt.Sprintf("%s/latest/%s", k.prefix, k.descriptor)
}

func (k Keys) Latest(kind builder.ArtifactKind) string {
	return fmt.Sprintf("%s/latest/%s", k.prefix, blobName(kind))
}

func (k Keys) Revision(tag string, kind builder.ArtifactKind) string {
	return fmt.Sprintf("%s/%s/%s", k.prefix, tag, blobName(kind))
}

func blobName(kind builder.ArtifactKind) string {
	if kind == builder.KindDependencies {
		return "deps.zip"
	}
	return "app.zip"
}
