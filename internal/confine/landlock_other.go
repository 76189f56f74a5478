//go:build !linux

package confine

// ApplyLandlock is not supported on non-Linux platforms.
func ApplyLandlock(_ ExecConfig) error {
	return ErrLandlockUnsupported
}
