//go:build !windows

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsp-proxy/src/internal/errors"
	"lsp-proxy/src/server/process"
)

func TestSpawnedProcessExitTerminatesTransport(t *testing.T) {
	pm := process.NewLSPProcessManager(time.Second)
	tr, err := Spawn(pm, process.Config{Command: "sh", Args: []string{"-c", "sleep 0.3; exit 1"}}, "go", nil)
	require.NoError(t, err)

	_, err = tr.Request(context.Background(), "initialize", nil)
	assert.True(t, errors.IsProcessTerminated(err), "got %v", err)

	select {
	case <-tr.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("transport not terminated after process exit")
	}
	assert.False(t, tr.Alive())
}

func TestCloseStopsProcess(t *testing.T) {
	pm := process.NewLSPProcessManager(200 * time.Millisecond)
	tr, err := Spawn(pm, process.Config{Command: "cat"}, "go", nil)
	require.NoError(t, err)
	assert.True(t, tr.Alive())

	require.NoError(t, tr.Close())
	assert.False(t, tr.Alive())
}
