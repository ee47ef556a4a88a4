// Package builder turns local inputs into deployable blobs: an
// installed dependency bundle and an application code archive.
package builder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Builder produces the two build artifacts of a run. The dependency
// build delegates to an external Fetcher; both kinds are packaged
// with the deterministic archiver.
type Builder struct {
	fetcher      Fetcher
	workDir      string
	srcPath      string
	manifestPath string
	runtime      string
}

func NewBuilder(fetcher Fetcher, workDir, srcPath, manifestPath, runtime string) (*Builder, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if strings.TrimSpace(workDir) == "" {
		return nil, errors.New("work dir is required")
	}
	if strings.TrimSpace(srcPath) == "" {
		return nil, errors.New("source path is required")
	}
	if strings.TrimSpace(manifestPath) == "" {
		return nil, errors.New("manifest path is required")
	}
	if _, err := LanguageForRuntime(runtime); err != nil {
		return nil, err
	}
	return &Builder{
		fetcher:      fetcher,
		workDir:      workDir,
		srcPath:      srcPath,
		manifestPath: manifestPath,
		runtime:      runtime,
	}, nil
}

func (b *Builder) Build(ctx context.Context, kind ArtifactKind) (BuildArtifact, error) {
	if b == nil || b.fetcher == nil {
		return BuildArtifact{}, errors.New("builder not initialized")
	}
	dest := filepath.Join(b.workDir, archiveName(kind))
	switch kind {
	case KindDependencies:
		lang, err := LanguageForRuntime(b.runtime)
		if err != nil {
			return BuildArtifact{}, err
		}
		if err := b.fetcher.Fetch(ctx, b.manifestPath, b.runtime, b.workDir); err != nil {
			return BuildArtifact{}, err
		}
		if err := Archive(b.workDir, lang.BundleDir(), dest); err != nil {
			return BuildArtifact{}, fmt.Errorf("package dependencies: %w", err)
		}
	case KindCode:
		if err := Archive(b.srcPath, "", dest); err != nil {
			return BuildArtifact{}, fmt.Errorf("package code: %w", err)
		}
	default:
		return BuildArtifact{}, fmt.Errorf("unknown artifact kind %d", kind)
	}
	return BuildArtifact{Kind: kind, Path: dest}, nil
}
