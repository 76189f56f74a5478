package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ParsePin splits "sha256:hexdigest" into algorithm + digest. Pins guard
// the delegate binary itself, not downloaded archives, and use the hex
// form so they can be produced with plain sha256sum.
func ParsePin(s string) (algorithm, digest string, err error) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("invalid pin format %q: expected \"algorithm:digest\"", s)
	}

	algorithm = s[:idx]
	digest = s[idx+1:]

	if algorithm != "sha256" {
		return "", "", fmt.Errorf("unsupported pin algorithm %q: only \"sha256\" is supported", algorithm)
	}

	if digest == "" {
		return "", "", fmt.Errorf("empty digest in pin %q", s)
	}

	if len(digest) != 64 {
		return "", "", fmt.Errorf("sha256 digest must be 64 hex characters, got %d", len(digest))
	}

	if _, err := hex.DecodeString(digest); err != nil {
		return "", "", fmt.Errorf("invalid hex digest in pin %q: %w", s, err)
	}

	return algorithm, digest, nil
}

// PinnedFileDigest resolves symlinks, verifies regular file, returns "sha256:<hex>".
func PinnedFileDigest(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", path, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", resolved, err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%q is not a regular file", resolved)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", fmt.Errorf("opening %q: %w", resolved, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %q: %w", resolved, err)
	}

	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}
