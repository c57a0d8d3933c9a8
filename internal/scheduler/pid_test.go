package scheduler

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePID_ReadPID_RoundTrip(t *testing.T) {
	dataDir := t.TempDir()

	require.NoError(t, WritePID(dataDir, 12345))

	pid, err := ReadPID(dataDir)
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestReadPID_MissingFile(t *testing.T) {
	_, err := ReadPID(t.TempDir())
	assert.True(t, os.IsNotExist(err))
}

func TestIsProcessRunning(t *testing.T) {
	// This test process exists
	assert.True(t, IsProcessRunning(os.Getpid()))

	// Invalid PIDs are never running
	assert.False(t, IsProcessRunning(0))
	assert.False(t, IsProcessRunning(-1))

	// Above the kernel's default pid ceiling
	assert.False(t, IsProcessRunning(1<<22))
}

func TestRemovePID(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, WritePID(dataDir, 1))

	require.NoError(t, RemovePID(dataDir))
	_, err := os.Stat(PIDPath(dataDir))
	assert.True(t, os.IsNotExist(err))

	// Removing again is not an error
	assert.NoError(t, RemovePID(dataDir))
}
