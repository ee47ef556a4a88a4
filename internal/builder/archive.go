package builder

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"
)

// Archive packages a directory tree into a zip at dest. When base is
// non-empty only root/base is included and entry names keep the base
// prefix; otherwise the contents of root sit at the archive top level.
//
// Output is deterministic for identical input trees: entries are
// sorted, timestamps are fixed, and only the permission bits survive.
// Digest-based change detection depends on this.
func Archive(root, base, dest string) error {
	scanRoot := root
	if base != "" {
		scanRoot = filepath.Join(root, base)
	}

	var files []string
	err := filepath.WalkDir(scanRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", scanRoot, err)
	}
	sort.Strings(files)

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	w := zip.NewWriter(out)

	epoch := time.Unix(0, 0).UTC()
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		hdr := &zip.FileHeader{
			Name:     filepath.ToSlash(rel),
			Method:   zip.Deflate,
			Modified: epoch,
		}
		hdr.SetMode(info.Mode().Perm())
		entry, err := w.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("create entry %s: %w", rel, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			return fmt.Errorf("write entry %s: %w", rel, err)
		}
		f.Close()
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return out.Close()
}

// archiveName maps a kind to its blob filename inside the store.
func archiveName(kind ArtifactKind) string {
	if kind == KindDependencies {
		return "deps.zip"
	}
	return "app.zip"
}
