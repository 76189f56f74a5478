//go:build !linux

package confine

// Probe returns no capabilities on non-Linux platforms.
func Probe() Capabilities {
	return Capabilities{}
}
