package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":5000", cfg.Listen)
	assert.Equal(t, int64(100<<20), cfg.MaxUploadBytes)
	assert.Equal(t, runtime.NumCPU(), cfg.MaxConcurrent)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Equal(t, "tmp", cfg.Workspace.Root)
	assert.Equal(t, "data", cfg.Workspace.OutputDir)
	assert.True(t, cfg.Workspace.SweepOnStart)
	assert.Equal(t, "matlab", cfg.Executable.Path)
	assert.Equal(t, []string{"-batch", "main"}, cfg.Executable.Args)
	assert.Equal(t, "{workspace}/.mcrCache", cfg.Runtime.Env["MCR_CACHE_ROOT"])
	assert.Equal(t, "xrkconv:", cfg.Redis.Prefix)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xrkconv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
timeout: 90s
workspace:
  root: /srv/xrk/tmp
executable:
  root: /opt/xrk
  assets: [main.m, lib/helper.dll]
runtime:
  root: /opt/mcr
  env:
    EXTRA: "1"
`), 0o644))

	cfg, err := load(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, "/srv/xrk/tmp", cfg.Workspace.Root)
	assert.Equal(t, "data", cfg.Workspace.OutputDir, "untouched keys keep defaults")
	assert.Equal(t, []string{"main.m", "lib/helper.dll"}, cfg.Executable.Assets)
	assert.Equal(t, []string{"-batch", "main"}, cfg.Executable.Args)
	assert.Equal(t, map[string]string{
		"MCR_CACHE_ROOT": "{workspace}/.mcrCache",
		"EXTRA":          "1",
	}, cfg.Runtime.Env)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xrkconv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrent: 2\n"), 0o644))

	cfg, err := load(path, envMap(map[string]string{
		"XRKCONV_MAX_CONCURRENT":           "6",
		"XRKCONV_WORKSPACE_MIN_AGE":        "15m",
		"XRKCONV_EXECUTABLE_ARGS":          "-nodisplay,-batch,main",
		"XRKCONV_REDIS_ADDR":               "localhost:6379",
		"XRKCONV_REDIS_DB":                 "3",
		"XRKCONV_WORKSPACE_SWEEP_ON_START": "false",
		"XRKCONV_RUNTIME_ENV":              "A=1,B=2",
	}))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.MaxConcurrent)
	assert.Equal(t, 15*time.Minute, cfg.Workspace.MinAge)
	assert.Equal(t, []string{"-nodisplay", "-batch", "main"}, cfg.Executable.Args)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.False(t, cfg.Workspace.SweepOnStart)
	assert.Equal(t, "1", cfg.Runtime.Env["A"])
	assert.Equal(t, "2", cfg.Runtime.Env["B"])
}

func TestLoad_Errors(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), noEnv)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listn: \":1\"\n"), 0o644))
	_, err = load(path, noEnv)
	assert.Error(t, err, "unknown keys are rejected")

	_, err = load("", envMap(map[string]string{"XRKCONV_TIMEOUT": "soon"}))
	assert.Error(t, err)

	_, err = load("", envMap(map[string]string{"XRKCONV_RUNTIME_ENV": "novalue"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Executable.Path = ""
	cfg.MaxConcurrent = 0
	cfg.Workspace.OutputDir = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executable.path")
	assert.Contains(t, err.Error(), "max_concurrent")
	assert.Contains(t, err.Error(), "workspace.output_dir")
}

func TestValidate_SessionTTLCoversTimeout(t *testing.T) {
	cfg := Default()
	cfg.Timeout = 30 * time.Minute
	cfg.Redis.SessionTTL = 10 * time.Minute
	assert.NoError(t, cfg.Validate(), "ttl is unused without redis")

	cfg.Redis.Addr = "localhost:6379"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.session_ttl")

	cfg.Redis.SessionTTL = 30 * time.Minute
	assert.NoError(t, cfg.Validate())
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	assert.Contains(t, names, "XRKCONV_WORKSPACE_ROOT")
	assert.Contains(t, names, "XRKCONV_REDIS_SESSION_TTL")
	assert.Contains(t, names, "XRKCONV_LOG_LEVEL")
	assert.NotContains(t, names, "XRKCONV_WORKSPACE")
}
