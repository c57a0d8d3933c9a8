package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrejom/vcfping/internal/logger"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	return log
}

func TestStore_Load_MissingFile(t *testing.T) {
	tempDir := t.TempDir()
	s := New(filepath.Join(tempDir, "state.json"), newTestLogger(t))

	var doc testDoc
	err := s.Load(context.Background(), &doc)

	// Missing file leaves the zero value
	assert.NoError(t, err)
	assert.Equal(t, testDoc{}, doc)
}

func TestStore_SaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	s := New(filepath.Join(tempDir, "state.json"), newTestLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testDoc{Name: "vm-a", Count: 3}))

	var doc testDoc
	require.NoError(t, s.Load(ctx, &doc))
	assert.Equal(t, "vm-a", doc.Name)
	assert.Equal(t, 3, doc.Count)
}

func TestStore_Save_CreatesParentDirs(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "nested", "deeper", "state.json")
	s := New(path, newTestLogger(t))

	require.NoError(t, s.Save(context.Background(), testDoc{Name: "x"}))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestStore_Save_LeavesNoStagingFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "state.json")
	s := New(path, newTestLogger(t))

	require.NoError(t, s.Save(context.Background(), testDoc{Name: "x"}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_Load_CorruptFileSelfHeals(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := New(path, newTestLogger(t))

	var doc testDoc
	err := s.Load(context.Background(), &doc)

	// Corruption is not fatal: the caller gets the zero value
	assert.NoError(t, err)
	assert.Equal(t, testDoc{}, doc)
}

func TestStore_Update_ReadModifyWrite(t *testing.T) {
	tempDir := t.TempDir()
	s := New(filepath.Join(tempDir, "state.json"), newTestLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testDoc{Name: "vm-a", Count: 1}))

	var doc testDoc
	err := s.Update(ctx, &doc, func() error {
		doc.Count++
		return nil
	})
	require.NoError(t, err)

	var loaded testDoc
	require.NoError(t, s.Load(ctx, &loaded))
	assert.Equal(t, 2, loaded.Count)
}

func TestStore_Update_ErrorAbortsWrite(t *testing.T) {
	tempDir := t.TempDir()
	s := New(filepath.Join(tempDir, "state.json"), newTestLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testDoc{Count: 1}))

	var doc testDoc
	err := s.Update(ctx, &doc, func() error {
		doc.Count = 99
		return assert.AnError
	})
	require.Error(t, err)

	// The stored document is untouched
	var loaded testDoc
	require.NoError(t, s.Load(ctx, &loaded))
	assert.Equal(t, 1, loaded.Count)
}
