package builder

// ArtifactKind names one of the two independently deployable halves
// of a function: the dependency bundle and the application code.
type ArtifactKind int

const (
	KindDependencies ArtifactKind = iota
	KindCode
)

func (k ArtifactKind) String() string {
	switch k {
	case KindDependencies:
		return "dependencies"
	case KindCode:
		return "code"
	default:
		return "unknown"
	}
}

// BuildArtifact is a packaged blob for one kind, ready for upload.
type BuildArtifact struct {
	Kind ArtifactKind
	Path string
}
