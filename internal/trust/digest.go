package trust

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// digestEncoding is URL-safe base64 with the trailing padding stripped,
// the same rendering the wheel format (PEP 427) uses. It is applied to
// the pristine downloaded archive, not its contents.
var digestEncoding = base64.RawURLEncoding

// ReaderDigest folds everything in r into a sha256 and returns the
// annotation-form digest. Input is consumed in bounded chunks; archives
// never need to fit in memory.
func ReaderDigest(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return digestEncoding.EncodeToString(h.Sum(nil)), nil
}

// FileDigest returns the annotation-form digest of a file on disk.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	digest, err := ReaderDigest(f)
	if err != nil {
		return "", fmt.Errorf("hashing %q: %w", path, err)
	}
	return digest, nil
}
