// Package pipeline sequences one deployment run: decide what changed,
// then build, push, deploy, and publish only the changed parts. A run
// with no changes is a read-only no-op.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adamihamza/lambda-ci/internal/builder"
	"github.com/adamihamza/lambda-ci/internal/fingerprint"
	"github.com/adamihamza/lambda-ci/internal/registry"
	"github.com/adamihamza/lambda-ci/internal/storage/objectstore"
)

// Stage labels one step of the run. The executed sequence is recorded
// on the Result so ordering is observable, not emergent.
type Stage string

const (
	StageFingerprint Stage = "fingerprint"
	StageBuild       Stage = "build"
	StageSkip        Stage = "skip"
	StagePush        Stage = "push"
	StageDeployDeps  Stage = "deploy-dependencies"
	StageDeployCode  Stage = "deploy-code"
	StagePublish     Stage = "publish"
)

// ChangeSet is the run's single change-detection verdict, computed
// once after build and immutable afterwards. Every stage-skip
// decision derives from it.
type ChangeSet struct {
	DepsChanged bool
	CodeChanged bool
}

func (c ChangeSet) Any() bool {
	return c.DepsChanged || c.CodeChanged
}

// ArtifactBuilder is the build collaborator surface the pipeline needs.
type ArtifactBuilder interface {
	Build(ctx context.Context, kind builder.ArtifactKind) (builder.BuildArtifact, error)
}

// Params identify the deployment target and the local inputs of a run.
type Params struct {
	FunctionName string
	Runtime      string
	Alias        string
	LayerName    string
	RevisionTag  string
	Bucket       string
	ManifestPath string
	WorkDir      string
}

func (p Params) Validate() error {
	if strings.TrimSpace(p.FunctionName) == "" {
		return errors.New("function name is required")
	}
	if strings.TrimSpace(p.Alias) == "" {
		return errors.New("alias is required")
	}
	if strings.TrimSpace(p.LayerName) == "" {
		return errors.New("layer name is required")
	}
	if strings.TrimSpace(p.RevisionTag) == "" {
		return errors.New("revision tag is required")
	}
	if strings.TrimSpace(p.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.TrimSpace(p.ManifestPath) == "" {
		return errors.New("manifest path is required")
	}
	if strings.TrimSpace(p.WorkDir) == "" {
		return errors.New("work dir is required")
	}
	if _, err := builder.LanguageForRuntime(p.Runtime); err != nil {
		return err
	}
	return nil
}

// Result is what one run produced. On a skipped run the version
// fields report the still-live state.
type Result struct {
	Changes          ChangeSet
	PublishedVersion string
	LayerVersion     int64
	Skipped          bool
	Stages           []Stage

	// Remote state read at run start, kept for reporting.
	Remote      registry.FunctionState
	RemoteLayer registry.LayerState
}

// Pipeline drives one deployment run against its collaborators.
// Registry mutations are expected to arrive pre-wrapped in the
// conflict-retry decorator.
type Pipeline struct {
	store   objectstore.Store
	reg     registry.Registry
	builder ArtifactBuilder
	logger  *slog.Logger
	params  Params
	keys    Keys
}

func New(store objectstore.Store, reg registry.Registry, b ArtifactBuilder, logger *slog.Logger, params Params) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if b == nil {
		return nil, errors.New("builder is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	lang, err := builder.LanguageForRuntime(params.Runtime)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		store:   store,
		reg:     reg,
		builder: b,
		logger:  logger,
		params:  params,
		keys:    NewKeys(params.FunctionName, lang.Descriptor()),
	}, nil
}

// Run executes the state machine: FINGERPRINT → BUILD → (SKIP |
// PUSH → DEPLOY → PUBLISH). Any error aborts the run; no rollback is
// attempted — the next run re-derives the change set from remote
// state and redoes only what is still needed.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	res := Result{}

	remote, err := p.reg.GetFunction(ctx, p.params.FunctionName, p.params.Alias)
	if err != nil {
		return res, err
	}
	layer, err := p.reg.LatestLayer(ctx, p.params.LayerName)
	if err != nil {
		return res, err
	}
	res.Remote = remote
	res.RemoteLayer = layer

	res.Stages = append(res.Stages, StageFingerprint)
	depsChanged, err := p.descriptorChanged(ctx)
	if err != nil {
		return res, fmt.Errorf("fingerprint: %w", err)
	}

	res.Stages = append(res.Stages, StageBuild)
	var depsArtifact builder.BuildArtifact
	if depsChanged {
		p.logger.Info("dependencies changed, building bundle")
		depsArtifact, err = p.builder.Build(ctx, builder.KindDependencies)
		if err != nil {
			return res, fmt.Errorf("build dependencies: %w", err)
		}
	}
	codeArtifact, err := p.builder.Build(ctx, builder.KindCode)
	if err != nil {
		return res, fmt.Errorf("build code: %w", err)
	}
	localDigest, err := fingerprint.DigestFile(codeArtifact.Path)
	if err != nil {
		return res, fmt.Errorf("digest code artifact: %w", err)
	}
	res.Changes = ChangeSet{
		DepsChanged: depsChanged,
		CodeChanged: fingerprint.CodeChanged(localDigest, remote.CodeSha256),
	}

	if !res.Changes.Any() {
		p.logger.Info("code and dependencies unchanged, nothing to do")
		res.Skipped = true
		res.Stages = append(res.Stages, StageSkip)
		res.PublishedVersion = remote.Version
		res.LayerVersion = layer.Version
		return res, nil
	}

	res.Stages = append(res.Stages, StagePush)
	if res.Changes.DepsChanged {
		if err := p.push(ctx, depsArtifact); err != nil {
			return res, fmt.Errorf("push dependencies: %w", err)
		}
	}
	if res.Changes.CodeChanged {
		if err := p.push(ctx, codeArtifact); err != nil {
			return res, fmt.Errorf("push code: %w", err)
		}
	}

	// Deps deploy strictly precedes the code deploy: the code update
	// must observe the newly attached layer in the live configuration.
	layerVersion := layer.Version
	if res.Changes.DepsChanged {
		res.Stages = append(res.Stages, StageDeployDeps)
		published, err := p.deployDependencies(ctx)
		if err != nil {
			return res, err
		}
		layerVersion = published.Version
	}
	if res.Changes.CodeChanged {
		res.Stages = append(res.Stages, StageDeployCode)
		p.logger.Info("deploying code", "revision", p.params.RevisionTag)
		key := p.keys.Revision(p.params.RevisionTag, builder.KindCode)
		if err := p.reg.UpdateFunctionCode(ctx, p.params.FunctionName, p.params.Bucket, key); err != nil {
			return res, fmt.Errorf("deploy code: %w", err)
		}
	}

	res.Stages = append(res.Stages, StagePublish)
	p.logger.Info("publishing version", "revision", p.params.RevisionTag)
	version, err := p.reg.PublishVersion(ctx, p.params.FunctionName, p.params.RevisionTag)
	if err != nil {
		return res, fmt.Errorf("publish: %w", err)
	}
	if err := p.reg.UpdateAlias(ctx, p.params.FunctionName, p.params.Alias, version, p.params.RevisionTag); err != nil {
		return res, fmt.Errorf("shift alias: %w", err)
	}

	res.PublishedVersion = version
	res.LayerVersion = layerVersion
	return res, nil
}

// descriptorChanged fetches the cached descriptor and compares it
// byte-for-byte with the local manifest. A missing cache entry is
// data, not an error: it means changed.
func (p *Pipeline) descriptorChanged(ctx context.Context) (bool, error) {
	key := p.keys.Descriptor()
	found, err := p.store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	var previous []byte
	if found {
		prevPath := filepath.Join(p.params.WorkDir, "prev-"+filepath.Base(p.params.ManifestPath))
		if err := p.store.Download(ctx, key, prevPath); err != nil {
			return false, err
		}
		previous, err = os.ReadFile(prevPath)
		if err != nil {
			return false, err
		}
	} else {
		p.logger.Info("no cached package descriptor, dependencies count as changed")
	}
	current, err := os.ReadFile(p.params.ManifestPath)
	if err != nil {
		return false, fmt.Errorf("read manifest: %w", err)
	}
	return fingerprint.DescriptorChanged(previous, found, current), nil
}

func (p *Pipeline) push(ctx context.Context, artifact builder.BuildArtifact) error {
	p.logger.Info("pushing artifact", "kind", artifact.Kind.String())
	if err := p.store.Upload(ctx, artifact.Path, p.keys.Latest(artifact.Kind)); err != nil {
		return err
	}
	return p.store.Upload(ctx, artifact.Path, p.keys.Revision(p.params.RevisionTag, artifact.Kind))
}

// deployDependencies publishes a new layer version from the pushed
// bundle, attaches it to the function, and only then promotes the
// local manifest to the cache key — the cache must never describe a
// layer that was not actually deployed.
func (p *Pipeline) deployDependencies(ctx context.Context) (registry.LayerVersion, error) {
	p.logger.Info("deploying dependencies", "layer", p.params.LayerName)
	published, err := p.reg.PublishLayerVersion(ctx, registry.PublishLayerInput{
		LayerName:         p.params.LayerName,
		Description:       p.params.RevisionTag,
		Bucket:            p.params.Bucket,
		Key:               p.keys.Revision(p.params.RevisionTag, builder.KindDependencies),
		CompatibleRuntime: p.params.Runtime,
	})
	if err != nil {
		return registry.LayerVersion{}, fmt.Errorf("deploy dependencies: %w", err)
	}
	if err := p.reg.AttachLayer(ctx, p.params.FunctionName, published.ARN); err != nil {
		return registry.LayerVersion{}, fmt.Errorf("attach layer: %w", err)
	}
	if err := p.store.Upload(ctx, p.params.ManifestPath, p.keys.Descriptor()); err != nil {
		return registry.LayerVersion{}, fmt.Errorf("cache package descriptor: %w", err)
	}
	return published, nil
}
