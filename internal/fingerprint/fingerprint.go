// Package fingerprint decides whether the two halves of a deployment
// unit actually changed. Dependencies are compared by the bytes of
// their package descriptor; code is compared by the digest of the
// built artifact against the digest the registry reports for the
// live function.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// DescriptorChanged reports whether the dependency manifest changed
// since the last deployed revision. Absence of a previous snapshot
// counts as changed. The comparison is byte-equality on purpose:
// cosmetic manifest edits triggering a rebuild are acceptable, a
// missed real change is not.
func DescriptorChanged(previous []byte, found bool, current []byte) bool {
	if !found {
		return true
	}
	return !bytes.Equal(previous, current)
}

// Digest computes the SHA-256 of the blob, standard-base64 encoded.
// This matches the encoding of the Lambda CodeSha256 field, so local
// and remote digests compare without translation.
func Digest(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Digest(f)
}

// CodeChanged is strict digest inequality.
func CodeChanged(local, remote string) bool {
	return local != remote
}
