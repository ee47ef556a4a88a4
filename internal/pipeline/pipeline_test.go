package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"

	"github.com/adamihamza/lambda-ci/internal/builder"
	"github.com/adamihamza/lambda-ci/internal/fingerprint"
	"github.com/adamihamza/lambda-ci/internal/registry"
)

// trace records every mutation issued against the fakes, in order,
// so ordering and zero-mutation properties are directly assertable.
type trace struct {
	ops []string
}

func (tr *trace) add(op string) { tr.ops = append(tr.ops, op) }

func (tr *trace) index(op string) int {
	return slices.Index(tr.ops, op)
}

type fakeStore struct {
	tr      *trace
	objects map[string][]byte
}

func newFakeStore(tr *trace) *fakeStore {
	return &fakeStore{tr: tr, objects: map[string][]byte{}}
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStore) Download(ctx context.Context, key, path string) error {
	data, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("not found: %s", key)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *fakeStore) Upload(ctx context.Context, path, key string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.objects[key] = data
	s.tr.add("store.upload:" + key)
	return nil
}

type fakeRegistry struct {
	tr    *trace
	fn    registry.FunctionState
	layer registry.LayerState
}

func (r *fakeRegistry) GetFunction(ctx context.Context, name, qualifier string) (registry.FunctionState, error) {
	return r.fn, nil
}

func (r *fakeRegistry) LatestLayer(ctx context.Context, layerName string) (registry.LayerState, error) {
	return r.layer, nil
}

func (r *fakeRegistry) PublishLayerVersion(ctx context.Context, in registry.PublishLayerInput) (registry.LayerVersion, error) {
	r.tr.add("registry.publishLayer")
	r.layer = registry.LayerState{Version: r.layer.Version + 1, RevisionTag: in.Description}
	return registry.LayerVersion{
		Version: r.layer.Version,
		ARN:     fmt.Sprintf("arn:aws:lambda:eu-west-1:123:layer:%s:%d", in.LayerName, r.layer.Version),
	}, nil
}

func (r *fakeRegistry) AttachLayer(ctx context.Context, functionName, layerARN string) error {
	r.tr.add("registry.attachLayer")
	return nil
}

func (r *fakeRegistry) UpdateFunctionCode(ctx context.Context, functionName, bucket, key string) error {
	r.tr.add("registry.updateCode")
	return nil
}

func (r *fakeRegistry) PublishVersion(ctx context.Context, functionName, description string) (string, error) {
	r.tr.add("registry.publishVersion")
	v, _ := strconv.Atoi(r.fn.Version)
	r.fn.Version = strconv.Itoa(v + 1)
	r.fn.RevisionTag = description
	return r.fn.Version, nil
}

func (r *fakeRegistry) UpdateAlias(ctx context.Context, functionName, alias, version, description string) error {
	r.tr.add("registry.updateAlias")
	return nil
}

type fakeBuilder struct {
	workDir     string
	codeContent []byte
	depsContent []byte
	buildErr    error
	built       []builder.ArtifactKind
}

func (b *fakeBuilder) Build(ctx context.Context, kind builder.ArtifactKind) (builder.BuildArtifact, error) {
	if b.buildErr != nil {
		return builder.BuildArtifact{}, b.buildErr
	}
	b.built = append(b.built, kind)
	name := "app.zip"
	content := b.codeContent
	if kind == builder.KindDependencies {
		name = "deps.zip"
		content = b.depsContent
	}
	path := filepath.Join(b.workDir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return builder.BuildArtifact{}, err
	}
	return builder.BuildArtifact{Kind: kind, Path: path}, nil
}

func digestOf(t *testing.T, blob []byte) string {
	t.Helper()
	d, err := fingerprint.Digest(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	return d
}

type fixture struct {
	tr       *trace
	store    *fakeStore
	reg      *fakeRegistry
	builder  *fakeBuilder
	params   Params
	manifest string
}

func newFixture(t *testing.T, manifestContent string) *fixture {
	t.Helper()
	work := t.TempDir()
	manifest := filepath.Join(t.TempDir(), "requirements.txt")
	if err := os.WriteFile(manifest, []byte(manifestContent), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	tr := &trace{}
	return &fixture{
		tr:    tr,
		store: newFakeStore(tr),
		reg: &fakeRegistry{
			tr: tr,
			fn: registry.FunctionState{
				Version:     "5",
				CodeSha256:  "remote-digest",
				RevisionTag: "OLDREV",
				ARN:         "arn:aws:lambda:eu-west-1:123:function:demo-fn",
			},
			layer: registry.LayerState{Version: 3, RevisionTag: "OLDREV"},
		},
		builder: &fakeBuilder{
			workDir:     work,
			codeContent: []byte("code-v2"),
			depsContent: []byte("deps-v2"),
		},
		params: Params{
			FunctionName: "demo-fn",
			Runtime:      "python3.9",
			Alias:        "latest",
			LayerName:    "demo-fn-deps",
			RevisionTag:  "NEWREV",
			Bucket:       "deploy-bucket",
			ManifestPath: manifest,
			WorkDir:      work,
		},
		manifest: manifest,
	}
}

func (f *fixture) run(t *testing.T) (Result, error) {
	t.Helper()
	p, err := New(f.store, f.reg, f.builder, nil, f.params)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return p.Run(context.Background())
}

func (f *fixture) mutationCount() int { return len(f.tr.ops) }

const descriptorKey = "lambda-ci/demo-fn/latest/requirements.txt"

func TestRunFirstDeployChangesEverything(t *testing.T) {
	// Scenario A: no cached descriptor, code digest differs.
	f := newFixture(t, "flask==2.0")

	res, err := f.run(t)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if !res.Changes.DepsChanged || !res.Changes.CodeChanged {
		t.Fatalf("ChangeSet = %+v, want both true", res.Changes)
	}
	if res.Skipped {
		t.Fatalf("run must not be skipped")
	}
	if res.PublishedVersion != "6" {
		t.Fatalf("PublishedVersion = %q, want 6", res.PublishedVersion)
	}
	if res.LayerVersion != 4 {
		t.Fatalf("LayerVersion = %d, want 4", res.LayerVersion)
	}

	for _, op := range []string{
		"registry.publishLayer", "registry.attachLayer",
		"registry.updateCode", "registry.publishVersion", "registry.updateAlias",
	} {
		count := 0
		for _, got := range f.tr.ops {
			if got == op {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("op %s recorded %d times, want 1", op, count)
		}
	}

	cached, ok := f.store.objects[descriptorKey]
	if !ok || string(cached) != "flask==2.0" {
		t.Fatalf("descriptor cache not promoted: %q %v", cached, ok)
	}

	wantStages := []Stage{StageFingerprint, StageBuild, StagePush, StageDeployDeps, StageDeployCode, StagePublish}
	if !slices.Equal(res.Stages, wantStages) {
		t.Fatalf("Stages = %v, want %v", res.Stages, wantStages)
	}
}

func TestRunUnchangedIsReadOnlySkip(t *testing.T) {
	// Scenario B: cached descriptor matches, code digest matches.
	f := newFixture(t, "flask==2.0")
	f.store.objects[descriptorKey] = []byte("flask==2.0")
	f.reg.fn.CodeSha256 = digestOf(t, f.builder.codeContent)
	f.tr.ops = nil

	res, err := f.run(t)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if res.Changes.Any() {
		t.Fatalf("ChangeSet = %+v, want both false", res.Changes)
	}
	if !res.Skipped {
		t.Fatalf("run must be skipped")
	}
	if f.mutationCount() != 0 {
		t.Fatalf("skip run must issue zero mutations, got %v", f.tr.ops)
	}
	if res.PublishedVersion != "5" || res.LayerVersion != 3 {
		t.Fatalf("skip run must report live versions, got %q/%d", res.PublishedVersion, res.LayerVersion)
	}
	// Only the code artifact is built on a deps-unchanged run.
	if !slices.Equal(f.builder.built, []builder.ArtifactKind{builder.KindCode}) {
		t.Fatalf("built kinds = %v, want code only", f.builder.built)
	}
	wantStages := []Stage{StageFingerprint, StageBuild, StageSkip}
	if !slices.Equal(res.Stages, wantStages) {
		t.Fatalf("Stages = %v, want %v", res.Stages, wantStages)
	}
}

func TestRunDepsOnlyChangeStillPublishes(t *testing.T) {
	// Scenario C: descriptor differs, code digest unchanged.
	f := newFixture(t, "flask==2.0")
	f.store.objects[descriptorKey] = []byte("flask==1.0")
	f.reg.fn.CodeSha256 = digestOf(t, f.builder.codeContent)
	f.tr.ops = nil

	res, err := f.run(t)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if !res.Changes.DepsChanged || res.Changes.CodeChanged {
		t.Fatalf("ChangeSet = %+v, want {true,false}", res.Changes)
	}
	if f.tr.index("registry.updateCode") >= 0 {
		t.Fatalf("unchanged code must not be deployed: %v", f.tr.ops)
	}
	if f.tr.index("registry.publishVersion") < 0 || f.tr.index("registry.updateAlias") < 0 {
		t.Fatalf("layer-only change must still publish a version and shift the alias: %v", f.tr.ops)
	}
	if string(f.store.objects[descriptorKey]) != "flask==2.0" {
		t.Fatalf("descriptor cache must be promoted to the new manifest")
	}
	if res.LayerVersion != 4 {
		t.Fatalf("LayerVersion = %d, want 4", res.LayerVersion)
	}
}

func TestRunMutationOrdering(t *testing.T) {
	f := newFixture(t, "flask==2.0")

	if _, err := f.run(t); err != nil {
		t.Fatalf("Run() err=%v", err)
	}

	depsRevKey := "store.upload:lambda-ci/demo-fn/NEWREV/deps.zip"
	codeRevKey := "store.upload:lambda-ci/demo-fn/NEWREV/app.zip"

	// No registry mutation before the artifacts are durably stored.
	if f.tr.index(depsRevKey) < 0 || f.tr.index(codeRevKey) < 0 {
		t.Fatalf("revision-keyed pushes missing: %v", f.tr.ops)
	}
	if f.tr.index(depsRevKey) > f.tr.index("registry.publishLayer") {
		t.Fatalf("layer published before its blob was pushed: %v", f.tr.ops)
	}
	if f.tr.index(codeRevKey) > f.tr.index("registry.updateCode") {
		t.Fatalf("code updated before its blob was pushed: %v", f.tr.ops)
	}

	// Layer attach completes before the code update is issued.
	if f.tr.index("registry.attachLayer") > f.tr.index("registry.updateCode") {
		t.Fatalf("layer attach must precede code update: %v", f.tr.ops)
	}

	// Descriptor promotion only after the layer publish succeeded.
	if f.tr.index("store.upload:"+descriptorKey) < f.tr.index("registry.publishLayer") {
		t.Fatalf("descriptor cached before layer publish: %v", f.tr.ops)
	}

	// Publish and alias shift are last.
	if f.tr.index("registry.publishVersion") != len(f.tr.ops)-2 ||
		f.tr.index("registry.updateAlias") != len(f.tr.ops)-1 {
		t.Fatalf("publish/alias must be the final mutations: %v", f.tr.ops)
	}
}

func TestRunSecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t, "flask==2.0")

	first, err := f.run(t)
	if err != nil {
		t.Fatalf("first Run() err=%v", err)
	}
	if !first.Changes.Any() {
		t.Fatalf("first run must detect changes")
	}

	// The registry now reports the digest of the deployed code blob;
	// the descriptor cache was promoted by the first run.
	f.reg.fn.CodeSha256 = digestOf(t, f.builder.codeContent)
	f.tr.ops = nil
	f.builder.built = nil

	second, err := f.run(t)
	if err != nil {
		t.Fatalf("second Run() err=%v", err)
	}
	if second.Changes.Any() || !second.Skipped {
		t.Fatalf("second run = %+v, want skip", second)
	}
	if f.mutationCount() != 0 {
		t.Fatalf("second run must issue zero mutations, got %v", f.tr.ops)
	}
}

func TestRunBuildFailureAbortsBeforeAnyMutation(t *testing.T) {
	f := newFixture(t, "flask==2.0")
	f.builder.buildErr = errors.New("pip install failed")

	_, err := f.run(t)
	if err == nil {
		t.Fatalf("expected build failure")
	}
	if f.mutationCount() != 0 {
		t.Fatalf("failed build must not mutate anything, got %v", f.tr.ops)
	}
}

func TestParamsValidate(t *testing.T) {
	valid := Params{
		FunctionName: "fn",
		Runtime:      "python3.9",
		Alias:        "latest",
		LayerName:    "fn-deps",
		RevisionTag:  "REV",
		Bucket:       "bkt",
		ManifestPath: "requirements.txt",
		WorkDir:      "/tmp/x",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	invalid := valid
	invalid.Runtime = "go1.x"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for unsupported runtime")
	}
	invalid = valid
	invalid.RevisionTag = " "
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for blank revision tag")
	}
}
