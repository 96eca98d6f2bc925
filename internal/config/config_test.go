package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.System.DataFileName)
	assert.Equal(t, "_SCHEMA", cfg.System.SchemaFileName)
	assert.Equal(t, "sys_read_interproc", cfg.System.ReadInterProcName)
	assert.Equal(t, "sys_write_interproc", cfg.System.WriteInterProcName)
	assert.Equal(t, "sys_write_result", cfg.System.WriteResultName)
	assert.Equal(t, "LOCAL_POST_PROCESSING", cfg.System.LocalStorageAlias)
	assert.Equal(t, "SHARED_POST_PROCESSING", cfg.System.SharedStorageAlias)
	assert.Equal(t, "INTERPROCESSING", cfg.System.InterProcStorageAlias)
	assert.True(t, cfg.Plugins.FollowSymlinks)
	assert.Equal(t, "__init__.star", cfg.Plugins.EntryPoint)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "not found")
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
plugins:
  dir: /opt/plugins
  follow_symlinks: false
storage:
  local: /data/lpp
  shared: /data/spp
  interproc: /data/ips
runtime:
  threads: 2
schedules:
  - name: nightly
    cron: "0 2 * * *"
    pipeline: /etc/pp/nightly.yaml
`)
	t.Setenv("PP_INTERPROC_ROOT", "/fast/ips")
	t.Setenv("PP_THREADS", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "/opt/plugins", cfg.Plugins.Dir)
	assert.False(t, cfg.Plugins.FollowSymlinks)
	assert.Equal(t, "/data/lpp", cfg.Storage.Local)
	assert.Equal(t, "/fast/ips", cfg.Storage.InterProcess)
	assert.Equal(t, 4, cfg.Runtime.Threads)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "nightly", cfg.Schedules[0].Name)
	// Untouched sections keep their defaults.
	assert.Equal(t, "_SCHEMA", cfg.System.SchemaFileName)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  s3: bucket\n"))
	require.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "negative threads", mutate: func(c *Config) { c.Runtime.Threads = -1 }, wantErr: "runtime.threads"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "duplicate system names", mutate: func(c *Config) { c.System.WriteResultName = c.System.ReadInterProcName }, wantErr: "share the name"},
		{name: "empty system name", mutate: func(c *Config) { c.System.WriteInterProcName = "" }, wantErr: "must not be empty"},
		{name: "schedule without cron", mutate: func(c *Config) { c.Schedules = []Schedule{{Pipeline: "p.yaml"}} }, wantErr: "schedules[0]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, DefaultConfigPath, ResolvePath(""))
	t.Setenv(EnvConfigPath, "/etc/pp.yaml")
	assert.Equal(t, "/etc/pp.yaml", ResolvePath(""))
	assert.Equal(t, "explicit.yaml", ResolvePath("explicit.yaml"))
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nPP_TEST_A=\"quoted\"\nPP_TEST_B=kept\n"), 0o600))
	t.Setenv("PP_TEST_A", "")
	t.Setenv("PP_TEST_B", "from-env")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "quoted", os.Getenv("PP_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("PP_TEST_B"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing")))
}
