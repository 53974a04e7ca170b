package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndLoad(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Initialize("https://sync.example.com", "tok-123")
	require.NoError(t, err)
	assert.Equal(t, "https://sync.example.com", cfg.ServerURL)

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://sync.example.com", loaded.ServerURL)
	assert.Equal(t, "tok-123", loaded.APIToken)
	assert.Equal(t, time.Minute, loaded.SyncInterval())
	assert.Equal(t, 5, loaded.MaxRetries)
	assert.Equal(t, cfg.Path(), loaded.Path())
}

func TestInitialize_RefusesExistingWorkspace(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Initialize("https://sync.example.com", "")
	require.NoError(t, err)
	_, err = Initialize("https://sync.example.com", "")
	require.Error(t, err)
}

func TestFindRoot_WalksUp(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	_, err := Initialize("https://sync.example.com", "")
	require.NoError(t, err)

	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)

	root, err := FindRoot()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, BillsyncDir), root)
}

func TestLoad_OutsideWorkspaceFails(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load()
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Initialize("https://sync.example.com", "")
	require.NoError(t, err)

	cfg.SyncIntervalSecs = 5
	cfg.Collections = map[string]string{"invoices": "invoices"}
	require.NoError(t, cfg.Save())

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, loaded.SyncInterval())
	assert.Equal(t, map[string]string{"invoices": "invoices"}, loaded.Collections)
}

func TestDerivedPaths(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Initialize("https://sync.example.com", "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Path(), DatabaseFile), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(cfg.Path(), LogsDir), cfg.LogsPath())
}
