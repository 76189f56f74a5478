package scratch

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	area, err := Acquire("")
	require.NoError(t, err)

	info, err := os.Stat(area.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, strings.Contains(filepath.Base(area.Path), "pip-warden-"))

	// Release removes contents too.
	require.NoError(t, os.WriteFile(filepath.Join(area.Path, "pkg-1.0.tar.gz"), []byte("x"), 0644))
	require.NoError(t, area.Release())

	_, err = os.Stat(area.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquire_CustomBase(t *testing.T) {
	base := t.TempDir()
	area, err := Acquire(base)
	require.NoError(t, err)
	defer area.Release()

	assert.Equal(t, base, filepath.Dir(area.Path))
}

func TestAcquire_UniqueNames(t *testing.T) {
	base := t.TempDir()
	first, err := Acquire(base)
	require.NoError(t, err)
	defer first.Release()
	second, err := Acquire(base)
	require.NoError(t, err)
	defer second.Release()

	assert.NotEqual(t, first.Path, second.Path)
}

func TestRelease_Idempotent(t *testing.T) {
	area, err := Acquire("")
	require.NoError(t, err)
	require.NoError(t, area.Release())
	assert.NoError(t, area.Release())
}

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	require.NoError(t, err)
	if runtime.GOOS == "linux" {
		assert.Greater(t, free, uint64(0))
	} else {
		assert.Zero(t, free)
	}
}
