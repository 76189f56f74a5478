package confine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEntrypoint_MissingPayload(t *testing.T) {
	os.Unsetenv("_PIP_WARDEN_CONFINE")
	err := RunEntrypoint()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "_PIP_WARDEN_CONFINE")
}

func TestRunEntrypoint_InvalidJSON(t *testing.T) {
	t.Setenv("_PIP_WARDEN_CONFINE", "not-json")
	err := RunEntrypoint()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}
