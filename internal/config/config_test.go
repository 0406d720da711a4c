package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	m, err := Load(t.TempDir())
	require.NoError(t, err)

	cfg := m.Config()
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, 1200*time.Millisecond, cfg.ArchiveDelay)
	assert.Equal(t, time.Second, cfg.RetryBase)
	assert.Equal(t, "", m.APIKey())
	assert.Equal(t, "", m.KeySource())
}

func TestLoadReadsYAML(t *testing.T) {
	root := t.TempDir()
	data := []byte("api_key: abc123\nmodel: gemini-2.0-flash\nbackend: SQLite\narchive_delay: 500ms\nretry_base: 250ms\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), data, 0o600))

	m, err := Load(root)
	require.NoError(t, err)
	cfg := m.Config()
	assert.Equal(t, "abc123", cfg.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
	assert.Equal(t, BackendSQL, cfg.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.ArchiveDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBase)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "config", m.KeySource())
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("backend: postgres\n"), 0o600))
	_, err := Load(root)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestEnvKeyFillsEmptyConfigKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "from-env")
	m, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "from-env", m.APIKey())
	assert.Equal(t, "env", m.KeySource())

	require.NoError(t, m.SetAPIKey("from-file"))
	assert.Equal(t, "from-file", m.APIKey())
	assert.Equal(t, "config", m.KeySource())
}

func TestSetAPIKeyPersists(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	root := t.TempDir()
	m, err := Load(root)
	require.NoError(t, err)
	require.NoError(t, m.SetAPIKey("  secret-key  "))

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", again.APIKey())

	require.NoError(t, again.SetAPIKey(""))
	assert.Equal(t, "", again.APIKey())
}

func TestManagerConcurrentAccess(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	m, err := Load(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.SetAPIKey("k")
		}()
		go func() {
			defer wg.Done()
			_ = m.APIKey()
		}()
	}
	wg.Wait()
	assert.Equal(t, "k", m.APIKey())
}

func TestResolveRoot(t *testing.T) {
	t.Setenv(EnvRoot, "/tmp/from-env")
	assert.Equal(t, "/tmp/flag", ResolveRoot("/tmp/flag"))
	assert.Equal(t, "/tmp/from-env", ResolveRoot(""))

	t.Setenv(EnvRoot, "")
	home, _ := os.UserHomeDir()
	if home != "" {
		assert.Equal(t, filepath.Join(home, ".quicktask"), ResolveRoot(""))
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", MaskKey(""))
	assert.Equal(t, "***", MaskKey("abc"))
	assert.Equal(t, "*****6789", MaskKey("123456789"))
}
