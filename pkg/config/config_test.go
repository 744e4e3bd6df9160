package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cferrors "github.com/vnykmshr/cardflow/pkg/common/errors"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cardflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
  format: json
transport:
  max_attempts: 6
  base_delay: 50ms
storage:
  type: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 6, cfg.Transport.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Transport.BaseDelay)
	assert.Equal(t, 5*time.Second, cfg.Transport.Timeout, "keys absent from the file keep their default")
	assert.Equal(t, "memory", cfg.Storage.Type)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "redis:\n  addr: file:6379\n")
	t.Setenv("CARDFLOW_REDIS__ADDR", "env:6379")
	t.Setenv("CARDFLOW_SERVER__WORKERS", "3")
	t.Setenv("CARDFLOW_DEDUP__SWEEP_INTERVAL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Server.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Dedup.SweepInterval)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"log level", "log:\n  level: loud\n"},
		{"storage type", "storage:\n  type: postgres\n"},
		{"attempts", "transport:\n  max_attempts: 0\n"},
		{"sqlite path", "storage:\n  sqlite:\n    path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			require.Error(t, err)
			assert.True(t, cferrors.IsValidationError(err), "got %v", err)
		})
	}
}
