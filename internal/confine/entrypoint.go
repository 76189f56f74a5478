package confine

import (
	"encoding/json"
	"fmt"
	"os"
)

// RunEntrypoint is called when the __confine__ sentinel is detected. It
// reads the payload from env, applies Landlock, filters the environment,
// and exec's the delegate. On success it does not return (syscall.Exec
// replaces the process). On non-Linux it returns an error.
func RunEntrypoint() error {
	payload := os.Getenv(payloadEnvVar)
	if payload == "" {
		return fmt.Errorf("%s environment variable not set", payloadEnvVar)
	}

	var cfg ExecConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", payloadEnvVar, err)
	}

	filteredEnv := FilterEnv(cfg.Env, cfg.EnvAllowlist)

	if err := ApplyLandlock(cfg); err != nil && err != ErrLandlockUnsupported {
		return fmt.Errorf("applying Landlock: %w", err)
	}

	// The parent resolved the delegate to an absolute path already
	if _, err := os.Stat(cfg.Command); err != nil {
		return fmt.Errorf("resolving delegate %q: %w", cfg.Command, err)
	}

	return execCommand(cfg.Command, cfg.Args, filteredEnv)
}
