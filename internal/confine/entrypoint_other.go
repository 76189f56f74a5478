//go:build !linux

package confine

import (
	"fmt"
	"runtime"
)

// execCommand is not supported on non-Linux platforms.
func execCommand(_ string, _ []string, _ []string) error {
	return fmt.Errorf("confined exec is not supported on %s", runtime.GOOS)
}
