package pip

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VikingOwl91/pip-warden/internal/trust"
)

// fakeDelegate writes a shell script standing in for the real installer.
func fakeDelegate(t *testing.T, script string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "fakepip")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0755))
	return bin
}

func TestNewSession_ResolvesBinary(t *testing.T) {
	bin := fakeDelegate(t, "exit 0\n")

	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)
	assert.Equal(t, bin, s.Binary())
}

func TestNewSession_CommandNotFound(t *testing.T) {
	_, err := NewSession(Options{Command: "nonexistent-delegate-54321"})
	require.Error(t, err)
}

func TestNewSession_PinMatch(t *testing.T) {
	bin := fakeDelegate(t, "exit 0\n")

	pin, err := trust.PinnedFileDigest(bin)
	require.NoError(t, err)

	_, err = NewSession(Options{Command: bin, PinnedSHA256: pin})
	require.NoError(t, err)
}

func TestNewSession_PinMismatch(t *testing.T) {
	bin := fakeDelegate(t, "exit 0\n")

	wrong := "sha256:" + strings.Repeat("a", 64)
	_, err := NewSession(Options{Command: bin, PinnedSHA256: wrong})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestNewSession_PathAllowlist(t *testing.T) {
	bin := fakeDelegate(t, "exit 0\n")

	_, err := NewSession(Options{Command: bin, AllowedPaths: []string{filepath.Dir(bin)}})
	require.NoError(t, err)

	_, err = NewSession(Options{Command: bin, AllowedPaths: []string{"/nonexistent/prefix"}})
	require.Error(t, err)
}

func TestFetch_ReturnsNewFilename(t *testing.T) {
	// args: download --no-deps --dest <dir> <specifier>
	bin := fakeDelegate(t, `touch "$4/nose-1.3.0.tar.gz"`+"\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	scratch := t.TempDir()
	name, err := s.Fetch(context.Background(), scratch, "nose==1.3.0")
	require.NoError(t, err)
	assert.Equal(t, "nose-1.3.0.tar.gz", name)
}

func TestFetch_NoNewFiles(t *testing.T) {
	bin := fakeDelegate(t, "exit 0\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), t.TempDir(), "nose==1.3.0")
	require.Error(t, err)

	var countErr *DownloadCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 0, countErr.Count)
	assert.Equal(t, "nose==1.3.0", countErr.Specifier)
}

func TestFetch_TooManyNewFiles(t *testing.T) {
	bin := fakeDelegate(t, `touch "$4/a.tar.gz" "$4/b.tar.gz"`+"\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), t.TempDir(), "nose==1.3.0")
	var countErr *DownloadCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 2, countErr.Count)
}

func TestFetch_DelegateFailure(t *testing.T) {
	bin := fakeDelegate(t, `echo "ERROR: No matching distribution found" >&2`+"\nexit 1\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), t.TempDir(), "no-such-pkg==0.0.1")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, exitErr.Output, "No matching distribution")
}

func TestFetch_AlreadyDownloadedContext(t *testing.T) {
	bin := fakeDelegate(t, `echo "File was already downloaded"`+"\nexit 0\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), t.TempDir(), "pkg==1.0")

	var countErr *DownloadCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 0, countErr.Count)
	assert.Contains(t, countErr.Output, "File was already downloaded")
}

func TestSession_ResetClearsOutput(t *testing.T) {
	bin := fakeDelegate(t, `echo "some noise"`+"\nexit 0\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	_, _ = s.Fetch(context.Background(), t.TempDir(), "pkg==1.0")
	assert.Contains(t, s.LastOutput(), "some noise")

	s.Reset()
	assert.Empty(t, s.LastOutput())
}

func TestFetch_ExtraArgsForwarded(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	bin := fakeDelegate(t, `echo "$@" > `+argsFile+"\n"+`touch "$4/pkg-1.0.tar.gz"`+"\n")

	s, err := NewSession(Options{
		Command:   bin,
		ExtraArgs: []string{"--index-url", "https://pypi.example/simple"},
	})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), t.TempDir(), "pkg==1.0")
	require.NoError(t, err)

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(recorded), "download --no-deps --dest")
	assert.Contains(t, string(recorded), "--index-url https://pypi.example/simple")
	assert.Contains(t, string(recorded), "pkg==1.0")
}

func TestFetch_EnvAllowlistFiltersEnvironment(t *testing.T) {
	t.Setenv("PIP_WARDEN_TEST_SECRET", "1")

	envFile := filepath.Join(t.TempDir(), "env.txt")
	bin := fakeDelegate(t, `env > `+envFile+"\n"+`touch "$4/pkg-1.0.tar.gz"`+"\n")

	s, err := NewSession(Options{Command: bin, EnvAllowlist: []string{"PATH"}})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), t.TempDir(), "pkg==1.0")
	require.NoError(t, err)

	dumped, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Contains(t, string(dumped), "PATH=")
	assert.NotContains(t, string(dumped), "PIP_WARDEN_TEST_SECRET")
}

func TestFetch_EmptyEnvAllowlistInheritsEnvironment(t *testing.T) {
	t.Setenv("PIP_WARDEN_TEST_SECRET", "1")

	envFile := filepath.Join(t.TempDir(), "env.txt")
	bin := fakeDelegate(t, `env > `+envFile+"\n"+`touch "$4/pkg-1.0.tar.gz"`+"\n")

	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), t.TempDir(), "pkg==1.0")
	require.NoError(t, err)

	dumped, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Contains(t, string(dumped), "PIP_WARDEN_TEST_SECRET=1")
}

func TestInstallArchive_Args(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	bin := fakeDelegate(t, `echo "$@" > `+argsFile+"\n")

	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	require.NoError(t, s.InstallArchive(context.Background(), "/scratch/nose-1.3.0.tar.gz"))

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "install --no-deps /scratch/nose-1.3.0.tar.gz", strings.TrimSpace(string(recorded)))
}

func TestInstallArchive_ExtraArgsNotForwarded(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	bin := fakeDelegate(t, `echo "$@" > `+argsFile+"\n")

	s, err := NewSession(Options{
		Command:   bin,
		ExtraArgs: []string{"--index-url", "https://pypi.example/simple"},
	})
	require.NoError(t, err)

	require.NoError(t, s.InstallArchive(context.Background(), "/scratch/pkg-1.0.tar.gz"))

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "install --no-deps /scratch/pkg-1.0.tar.gz", strings.TrimSpace(string(recorded)))
}

func TestInstallArchive_Failure(t *testing.T) {
	bin := fakeDelegate(t, "exit 2\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	err = s.InstallArchive(context.Background(), "/scratch/x.tar.gz")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestPassthrough_ForwardsExitCode(t *testing.T) {
	bin := fakeDelegate(t, "exit 17\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	code, err := s.Passthrough(context.Background(), []string{"freeze"})
	require.NoError(t, err)
	assert.Equal(t, 17, code)
}

func TestPassthrough_Success(t *testing.T) {
	bin := fakeDelegate(t, "exit 0\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	code, err := s.Passthrough(context.Background(), []string{"--version"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestPassthrough_EnvAllowlistFiltersEnvironment(t *testing.T) {
	t.Setenv("PIP_WARDEN_TEST_SECRET", "1")

	envFile := filepath.Join(t.TempDir(), "env.txt")
	bin := fakeDelegate(t, `env > `+envFile+"\n")

	s, err := NewSession(Options{Command: bin, EnvAllowlist: []string{"PATH"}})
	require.NoError(t, err)

	code, err := s.Passthrough(context.Background(), []string{"freeze"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	dumped, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.NotContains(t, string(dumped), "PIP_WARDEN_TEST_SECRET")
}

func TestExitError_Message(t *testing.T) {
	err := &ExitError{Code: 1, Output: "boom\n"}
	assert.Equal(t, "delegate exited with code 1: boom", err.Error())

	bare := &ExitError{Code: 3}
	assert.Equal(t, "delegate exited with code 3", bare.Error())
}

func TestDownloadCountError_Message(t *testing.T) {
	err := &DownloadCountError{Specifier: "nose==1.3.0", Count: 2}
	assert.Contains(t, err.Error(), "2 newly downloaded files")
	assert.Contains(t, err.Error(), "nose==1.3.0")
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	var tb tailBuffer
	_, err := tb.Write([]byte(strings.Repeat("x", tailLimit)))
	require.NoError(t, err)
	_, err = tb.Write([]byte("end"))
	require.NoError(t, err)

	got := tb.String()
	assert.Len(t, got, tailLimit)
	assert.True(t, strings.HasSuffix(got, "end"))
}

func TestFetch_MissingDestDir(t *testing.T) {
	bin := fakeDelegate(t, "exit 0\n")
	s, err := NewSession(Options{Command: bin})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), "/nonexistent/dest", "pkg==1.0")
	require.Error(t, err)
	assert.False(t, errors.As(err, new(*ExitError)))
}
