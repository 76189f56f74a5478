// Package scratch manages the ephemeral directory holding downloaded but
// not yet verified archives for the lifetime of one batch.
package scratch

import (
	"fmt"
	"os"
)

// Area is an exclusively owned temporary directory. Exactly one batch owns
// it, and Release must run on every exit path.
type Area struct {
	Path string
}

// Acquire creates a uniquely named, collision-free scratch directory under
// base, or under the system temp dir when base is empty.
func Acquire(base string) (*Area, error) {
	dir, err := os.MkdirTemp(base, "pip-warden-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &Area{Path: dir}, nil
}

// Release removes the area and everything under it.
func (a *Area) Release() error {
	if err := os.RemoveAll(a.Path); err != nil {
		return fmt.Errorf("removing scratch directory %q: %w", a.Path, err)
	}
	return nil
}
