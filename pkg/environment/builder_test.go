package environment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/xrkconv/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_PrependsInPriorityOrder(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "runtime")
	second := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(first, 0755))
	require.NoError(t, os.MkdirAll(second, 0755))

	workspace := filepath.Join(root, "ws")
	base := domain.NewEnvironment([]string{"LIBS=/usr/lib", "HOME=/home/u"})

	b := NewBuilder("LIBS")
	env, warnings := b.Build(base, workspace, []string{first, second})

	assert.Empty(t, warnings)
	got, _ := env.Get("LIBS")
	sep := string(filepath.ListSeparator)
	assert.Equal(t, strings.Join([]string{workspace, first, second, "/usr/lib"}, sep), got)

	home, _ := env.Get("HOME")
	assert.Equal(t, "/home/u", home)
}

func TestBuilder_MissingRootsAreWarnings(t *testing.T) {
	root := t.TempDir()
	present := filepath.Join(root, "present")
	require.NoError(t, os.MkdirAll(present, 0755))
	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	missing := filepath.Join(root, "missing")

	b := NewBuilder("LIBS")
	env, warnings := b.Build(domain.NewEnvironment(nil), "/ws", []string{missing, present, file})

	require.Len(t, warnings, 2)
	assert.Equal(t, missing, warnings[0].Path)
	assert.Equal(t, "not found", warnings[0].Reason)
	assert.Equal(t, file, warnings[1].Path)
	assert.Equal(t, "not a directory", warnings[1].Reason)

	got, _ := env.Get("LIBS")
	sep := string(filepath.ListSeparator)
	assert.Equal(t, "/ws"+sep+present, got, "no trailing separator when the base value is unset")
}

func TestBuilder_DoesNotMutateBaseOrProcess(t *testing.T) {
	t.Setenv("XRKCONV_TEST_LIBS", "/original")
	base := domain.NewEnvironment(os.Environ())

	b := NewBuilder("XRKCONV_TEST_LIBS", WithFixed(map[string]string{"CACHE": "{workspace}/.cache"}))
	env, _ := b.Build(base, "/ws/a", nil)

	got, _ := base.Get("XRKCONV_TEST_LIBS")
	assert.Equal(t, "/original", got)
	assert.Equal(t, "/original", os.Getenv("XRKCONV_TEST_LIBS"))
	_, ok := base.Get("CACHE")
	assert.False(t, ok)

	got, _ = env.Get("CACHE")
	assert.Equal(t, "/ws/a/.cache", got)
}

func TestBuilder_SessionsGetIndependentValues(t *testing.T) {
	base := domain.NewEnvironment([]string{"LIBS=/usr/lib"})
	b := NewBuilder("LIBS", WithFixed(map[string]string{"MCR_CACHE_ROOT": "{workspace}/.mcrCache"}))

	envA, _ := b.Build(base, "/ws/a", nil)
	envB, _ := b.Build(base, "/ws/b", nil)

	a, _ := envA.Get("MCR_CACHE_ROOT")
	bb, _ := envB.Get("MCR_CACHE_ROOT")
	assert.Equal(t, "/ws/a/.mcrCache", a)
	assert.Equal(t, "/ws/b/.mcrCache", bb)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, "LD_LIBRARY_PATH", DefaultSearchVar("linux"))
	assert.Equal(t, "DYLD_LIBRARY_PATH", DefaultSearchVar("darwin"))
	assert.Equal(t, "PATH", DefaultSearchVar("windows"))

	paths := DefaultRuntimePaths("linux")
	assert.Equal(t, filepath.Join("runtime", "glnxa64"), paths[0])
	assert.Len(t, paths, 4)

	resolved := ResolveRoots("/opt/mcr", []string{"runtime/glnxa64", "/abs/lib"})
	assert.Equal(t, []string{filepath.Join("/opt/mcr", "runtime/glnxa64"), "/abs/lib"}, resolved)
}
