// Package pip drives the delegate installer as a subprocess. A Session
// resolves and trust-checks the binary once up front, then serializes
// every invocation because the delegate does not tolerate concurrent
// runs against the same cache.
package pip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/VikingOwl91/pip-warden/internal/confine"
	"github.com/VikingOwl91/pip-warden/internal/trust"
)

// Options configures a delegate session.
type Options struct {
	Command      string           // delegate command name or path, defaults to "pip"
	AllowedPaths []string         // optional prefix allowlist for the resolved binary
	PinnedSHA256 string           // optional "sha256:<hex>" pin for the binary
	ExtraArgs    []string         // forwarded to download invocations only
	EnvAllowlist []string         // optional allowlist for the delegate's environment, empty inherits everything
	Confine      *confine.Profile // non-nil confines download invocations
	Logger       *slog.Logger
}

// Session invokes the delegate installer. It retains the output of the
// most recent invocation until Reset clears it; each run resets the
// capture explicitly before starting, since the delegate reports state
// only through its exit code and whatever it printed.
type Session struct {
	binary       string
	extraArgs    []string
	envAllowlist []string
	profile      *confine.Profile
	logger       *slog.Logger

	mu         sync.Mutex
	lastOutput string
}

// NewSession resolves the delegate binary and runs the configured trust
// checks against it before anything else happens.
func NewSession(opts Options) (*Session, error) {
	command := opts.Command
	if command == "" {
		command = "pip"
	}

	binary, err := ResolveBinary(command)
	if err != nil {
		return nil, err
	}
	if err := ValidateBinaryPath(binary, opts.AllowedPaths); err != nil {
		return nil, err
	}

	if opts.PinnedSHA256 != "" {
		computed, err := trust.PinnedFileDigest(binary)
		if err != nil {
			return nil, fmt.Errorf("hashing delegate binary: %w", err)
		}
		if computed != opts.PinnedSHA256 {
			return nil, fmt.Errorf("delegate binary mismatch for %q: expected %s, computed %s",
				binary, opts.PinnedSHA256, computed)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		binary:       binary,
		extraArgs:    opts.ExtraArgs,
		envAllowlist: opts.EnvAllowlist,
		profile:      opts.Confine,
		logger:       logger,
	}, nil
}

// Binary returns the resolved delegate path.
func (s *Session) Binary() string {
	return s.binary
}

// Reset clears state carried over from the previous invocation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) reset() {
	s.lastOutput = ""
}

// LastOutput returns the tail of what the previous invocation printed.
func (s *Session) LastOutput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutput
}

// Fetch downloads exactly one archive for the given requirement into
// destDir and returns its filename. The specifier is passed to the
// delegate as a single argument so environment markers survive. Delegate
// output is held back unless something goes wrong.
func (s *Session) Fetch(ctx context.Context, destDir, specifier string) (string, error) {
	before, err := listDir(destDir)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", destDir, err)
	}

	args := []string{"download", "--no-deps", "--dest", destDir}
	args = append(args, s.extraArgs...)
	args = append(args, specifier)

	if err := s.run(ctx, args, io.Discard, io.Discard, true); err != nil {
		return "", err
	}

	after, err := listDir(destDir)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", destDir, err)
	}

	var added []string
	for name := range after {
		if !before[name] {
			added = append(added, name)
		}
	}
	if len(added) != 1 {
		return "", &DownloadCountError{Specifier: specifier, Count: len(added), Output: s.LastOutput()}
	}
	return added[0], nil
}

// InstallArchive installs one verified archive without resolving its
// dependencies. Extra options stay out of the argument list here; they
// apply to downloads. The delegate's output goes straight to the user.
func (s *Session) InstallArchive(ctx context.Context, archivePath string) error {
	return s.run(ctx, []string{"install", "--no-deps", archivePath}, os.Stdout, os.Stderr, false)
}

// Passthrough hands the argument list to the delegate untouched with
// inherited stdio and returns its exit code.
func (s *Session) Passthrough(ctx context.Context, args []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()

	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = s.env()

	s.logger.Debug("delegating", "binary", s.binary, "args", args)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("running delegate: %w", err)
}

// env returns the environment for an unconfined invocation, nil when the
// delegate inherits everything. Confined invocations carry the full
// environment in the re-exec payload and filter it in the entrypoint.
func (s *Session) env() []string {
	if len(s.envAllowlist) == 0 {
		return nil
	}
	return confine.FilterEnv(os.Environ(), s.envAllowlist)
}

// run executes one delegate invocation. Downloads are confined when a
// profile is set; installs never are, since they have to write into
// site-packages.
func (s *Session) run(ctx context.Context, args []string, stdout, stderr io.Writer, download bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()

	confined := download && s.profile != nil

	var cmd *exec.Cmd
	if confined {
		built, err := confine.BuildCommand(ctx, s.profile, s.binary, args, os.Environ())
		if err != nil {
			return fmt.Errorf("confining delegate: %w", err)
		}
		cmd = built
	} else {
		cmd = exec.CommandContext(ctx, s.binary, args...)
		cmd.Env = s.env()
	}

	var tail tailBuffer
	cmd.Stdout = io.MultiWriter(stdout, &tail)
	cmd.Stderr = io.MultiWriter(stderr, &tail)

	start := time.Now()
	s.logger.Debug("invoking delegate", "binary", s.binary, "args", args, "confined", confined)
	runErr := cmd.Run()
	s.logger.Debug("delegate finished", "duration", time.Since(start), "ok", runErr == nil)

	s.lastOutput = tail.String()

	if runErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Output: tail.String()}
	}
	return fmt.Errorf("running delegate: %w", runErr)
}

func listDir(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	return names, nil
}

// tailLimit bounds how much delegate output the session retains.
const tailLimit = 4096

// tailBuffer keeps the last tailLimit bytes written to it. The stdout
// and stderr copiers write concurrently, so it locks.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - tailLimit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
