// Package confine restricts what delegate download runs can write to
// disk. Downloads handle bytes nobody has verified yet, so they get a
// Landlock write allowlist: reads and execution stay open because the
// delegate needs interpreters, certificates, and site-packages from all
// over the tree, while writes are limited to the scratch area, the
// system temp dir, the delegate's cache, and any extra paths from
// config. Network access is untouched since downloads need it.
package confine

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Sentinel is the argv[1] marker for the re-exec entrypoint.
const Sentinel = "__confine__"

// payloadEnvVar carries the JSON ExecConfig into the re-exec'd process.
const payloadEnvVar = "_PIP_WARDEN_CONFINE"

// Profile describes the confinement applied to one run's downloads.
type Profile struct {
	SelfPath     string   // path to the pip-warden binary for re-exec
	WritePaths   []string // directories the delegate may write under
	EnvAllowlist []string // empty means inherit the full environment
}

// ExecConfig is the JSON payload passed via payloadEnvVar.
type ExecConfig struct {
	WritePaths   []string `json:"write_paths"`
	EnvAllowlist []string `json:"env_allowlist"`
	Env          []string `json:"env"`
	Command      string   `json:"command"`
	Args         []string `json:"args"`
}

// BuildCommand transforms a delegate invocation into a confined re-exec
// of pip-warden itself. The child process applies Landlock, filters its
// environment, and then replaces itself with the delegate.
func BuildCommand(ctx context.Context, profile *Profile, command string, args, env []string) (*exec.Cmd, error) {
	if profile.SelfPath == "" {
		return nil, fmt.Errorf("confine profile has no self path")
	}

	// Build exec args: [self, "__confine__", "--", cmd, args...]
	execArgs := make([]string, 0, 3+len(args))
	execArgs = append(execArgs, Sentinel, "--", command)
	execArgs = append(execArgs, args...)

	cmd := exec.CommandContext(ctx, profile.SelfPath, execArgs...)

	cfg := ExecConfig{
		WritePaths:   profile.WritePaths,
		EnvAllowlist: profile.EnvAllowlist,
		Env:          env,
		Command:      command,
		Args:         args,
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling confine config: %w", err)
	}

	// The payload is the child's entire environment; the entrypoint
	// rebuilds the real one after filtering.
	cmd.Env = []string{payloadEnvVar + "=" + string(payload)}

	return cmd, nil
}
