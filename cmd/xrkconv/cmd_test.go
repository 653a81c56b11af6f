package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig points a config file at a shell-script converter invoked as
// script <input> <output_dir>.
func writeConfig(t *testing.T, script string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fixtures need /bin/sh")
	}
	dir := t.TempDir()
	exe := filepath.Join(dir, "convert.sh")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"+script+"\n"), 0o755))

	root := filepath.Join(dir, "tmp")
	cfg := "workspace:\n  root: " + root + "\nexecutable:\n  path: " + exe +
		"\n  args: [\"{input}\", \"{output_dir}\"]\nlog:\n  level: error\n"
	path := filepath.Join(dir, "xrkconv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		for _, c := range []string{"out", "extract"} {
			_ = convertCmd.Flags().Set(c, convertCmd.Flags().Lookup(c).DefValue)
			convertCmd.Flags().Lookup(c).Changed = false
		}
		_ = mcpCmd.Flags().Set("transport", "stdio")
		_ = sweepCmd.Flags().Set("min-age", "0s")
		sweepCmd.Flags().Lookup("min-age").Changed = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "xrkconv version dev\n", out)
}

func TestConvert_WritesArtifact(t *testing.T) {
	cfg, root := writeConfig(t, `cp "$1" "$2/lap.csv"`)
	input := filepath.Join(t.TempDir(), "lap.xrk")
	require.NoError(t, os.WriteFile(input, []byte("t,v\n"), 0o644))
	out := t.TempDir()

	stdout, err := run(t, "convert", input, "--config", cfg, "--out", out)
	require.NoError(t, err, stdout)
	assert.True(t, strings.HasPrefix(stdout, filepath.Join(out, "lap.csv")+" blake3="))

	data, err := os.ReadFile(filepath.Join(out, "lap.csv"))
	require.NoError(t, err)
	assert.Equal(t, "t,v\n", string(data))

	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries)
}

func TestConvert_ExtractsArchive(t *testing.T) {
	cfg, _ := writeConfig(t, `printf a > "$2/a.csv"; printf b > "$2/b.csv"`)
	input := filepath.Join(t.TempDir(), "lap.xrk")
	require.NoError(t, os.WriteFile(input, []byte("raw"), 0o644))
	out := t.TempDir()

	stdout, err := run(t, "convert", input, "--config", cfg, "--out", out, "--extract")
	require.NoError(t, err)

	printed := strings.Fields(stdout)
	assert.Equal(t, []string{filepath.Join(out, "a.csv"), filepath.Join(out, "b.csv")}, printed)
	for _, path := range printed {
		assert.FileExists(t, path)
	}

	for name, want := range map[string]string{"a.csv": "a", "b.csv": "b"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestConvert_FailureShowsStreams(t *testing.T) {
	cfg, _ := writeConfig(t, `printf 'boom\n' >&2; exit 1`)
	input := filepath.Join(t.TempDir(), "lap.xrk")
	require.NoError(t, os.WriteFile(input, []byte("raw"), 0o644))

	out, err := run(t, "convert", input, "--config", cfg, "--out", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, out, "boom")
}

func TestSweep_RemovesStaleWorkspaces(t *testing.T) {
	cfg, root := writeConfig(t, `exit 0`)
	stale := filepath.Join(root, "3f2b7c1e-5d4a-4e8b-9c0d-1a2b3c4d5e6f")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "keep-me"), 0o755))

	out, err := run(t, "sweep", "--config", cfg, "--min-age", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "removed "+stale+"\n")
	assert.Contains(t, out, "1 removed")

	_, err = os.Stat(filepath.Join(root, "keep-me"))
	assert.NoError(t, err, "entries not named like sessions are left alone")
}

func TestSweep_SparesRecentWorkspacesWithoutRegistry(t *testing.T) {
	cfg, root := writeConfig(t, `exit 0`)
	fresh := filepath.Join(root, "6a1f0c2e-7b3d-4f5a-8e9b-0c1d2e3f4a5b")
	old := filepath.Join(root, "7b2e1d3f-8c4e-4a6b-9f0c-1d2e3f4a5b6c")
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	require.NoError(t, os.MkdirAll(old, 0o755))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	out, err := run(t, "sweep", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "removed "+old+"\n")
	assert.Contains(t, out, "1 removed, 1 kept")
	assert.DirExists(t, fresh, "may belong to a server in another process")
}

func TestMCP_RejectsUnknownTransport(t *testing.T) {
	cfg, _ := writeConfig(t, `exit 0`)
	_, err := run(t, "mcp", "--config", cfg, "--transport", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}
