package builder

import (
	"fmt"
	"strings"
)

// Language is the package-management family of a function runtime.
type Language string

const (
	LanguagePython Language = "python"
	LanguageNode   Language = "nodejs"
)

// LanguageForRuntime maps a registry runtime identifier (python3.9,
// nodejs18.x, ...) onto its language family. Anything else is a
// configuration error.
func LanguageForRuntime(runtime string) (Language, error) {
	runtime = strings.TrimSpace(runtime)
	switch {
	case strings.HasPrefix(runtime, "python"):
		return LanguagePython, nil
	case strings.HasPrefix(runtime, "nodejs"):
		return LanguageNode, nil
	default:
		return "", fmt.Errorf("unsupported runtime %q: only python and nodejs are supported", runtime)
	}
}

// Descriptor is the dependency manifest filename for the language.
func (l Language) Descriptor() string {
	switch l {
	case LanguagePython:
		return "requirements.txt"
	case LanguageNode:
		return "package.json"
	default:
		return ""
	}
}

// BundleDir is the top-level directory the installed dependency tree
// must occupy inside the layer archive for the runtime to find it.
func (l Language) BundleDir() string {
	return string(l)
}
