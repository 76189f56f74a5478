//go:build linux

package confine

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Probe checks the running kernel for Landlock support.
func Probe() Capabilities {
	abi := detectLandlockABI()
	return Capabilities{
		Landlock:    abi > 0,
		LandlockABI: abi,
	}
}

func detectLandlockABI() int {
	// landlock_create_ruleset(NULL, 0, LANDLOCK_CREATE_RULESET_VERSION)
	// returns the highest ABI version supported by the kernel.
	abi, _, errno := syscall.Syscall(
		unix.SYS_LANDLOCK_CREATE_RULESET,
		0, // attr = NULL
		0, // size = 0
		uintptr(unix.LANDLOCK_CREATE_RULESET_VERSION),
	)
	if errno != 0 {
		return 0
	}
	return int(abi)
}
