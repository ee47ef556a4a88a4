package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Fetcher installs a dependency tree described by a manifest into the
// working directory. It is a blocking external collaborator; non-zero
// exit is fatal to the run.
type Fetcher interface {
	Fetch(ctx context.Context, manifestPath, runtime, workDir string) error
}

// FetchError carries the captured toolchain output so the operator
// sees the real diagnostic, not just the exit status.
type FetchError struct {
	Output string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("dependency fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DockerFetcher runs the runtime's build image with the work
// directory mounted at /var/task and installs dependencies inside it.
type DockerFetcher struct {
	dockerBin string
}

func NewDockerFetcher(dockerBin string) (*DockerFetcher, error) {
	dockerBin = strings.TrimSpace(dockerBin)
	if dockerBin == "" {
		dockerBin = "docker"
	}
	if _, err := exec.LookPath(dockerBin); err != nil {
		return nil, fmt.Errorf("docker binary not found: %w", err)
	}
	return &DockerFetcher{dockerBin: dockerBin}, nil
}

func (f *DockerFetcher) Fetch(ctx context.Context, manifestPath, runtime, workDir string) error {
	lang, err := LanguageForRuntime(runtime)
	if err != nil {
		return err
	}
	if strings.TrimSpace(workDir) == "" {
		return errors.New("work dir is required")
	}

	descriptor := lang.Descriptor()
	if err := copyFile(manifestPath, filepath.Join(workDir, descriptor)); err != nil {
		return fmt.Errorf("stage manifest: %w", err)
	}

	var installCmd string
	switch lang {
	case LanguagePython:
		installCmd = fmt.Sprintf("pip3 install -r %s -t python/lib/%s/site-packages", descriptor, runtime)
	case LanguageNode:
		installCmd = "npm install"
	}

	args := []string{
		"run", "--rm",
		"-v", workDir + ":/var/task",
		"lambci/lambda:build-" + runtime,
		"/bin/sh", "-c", installCmd,
	}
	cmd := exec.CommandContext(ctx, f.dockerBin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &FetchError{Output: strings.TrimSpace(string(out)), Err: err}
	}

	if lang == LanguageNode {
		// npm leaves node_modules at the mount root; the layer layout
		// wants it under nodejs/.
		target := filepath.Join(workDir, lang.BundleDir())
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("prepare bundle dir: %w", err)
		}
		if err := os.Rename(filepath.Join(workDir, "node_modules"), filepath.Join(target, "node_modules")); err != nil {
			return fmt.Errorf("relocate node_modules: %w", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
