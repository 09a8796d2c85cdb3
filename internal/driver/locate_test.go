package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindDriver_EnvOverrideWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.js")
	require.NoError(t, os.WriteFile(path, []byte("// engine"), 0o644))
	t.Setenv("PWCTL_DRIVER", path)

	found, err := FindDriver()
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestFindDriver_EnvOverrideInvalidFails(t *testing.T) {
	t.Setenv("PWCTL_DRIVER", filepath.Join(t.TempDir(), "missing.js"))

	_, err := FindDriver()
	require.ErrorIs(t, err, ErrDriverNotFound)
}

func TestFindDriver_NodeModulesFallback(t *testing.T) {
	t.Setenv("PWCTL_DRIVER", "")
	dir := t.TempDir()
	cliPath := filepath.Join(dir, "node_modules", "playwright-core", "cli.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(cliPath), 0o755))
	require.NoError(t, os.WriteFile(cliPath, []byte("// engine"), 0o644))
	t.Chdir(dir)

	found, err := FindDriver()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("node_modules", "playwright-core", "cli.js"), found)
}

func TestFindDriver_NotFound(t *testing.T) {
	t.Setenv("PWCTL_DRIVER", "")
	t.Chdir(t.TempDir())

	_, err := FindDriver()
	require.ErrorIs(t, err, ErrDriverNotFound)
}

func TestFindNode_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	t.Setenv("PWCTL_NODE", path)

	found, err := FindNode()
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestFindNode_EnvOverrideInvalidFails(t *testing.T) {
	t.Setenv("PWCTL_NODE", filepath.Join(t.TempDir(), "missing-node"))

	_, err := FindNode()
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestStart_MissingInterpreterFails(t *testing.T) {
	_, err := Start(Options{
		NodePath:   filepath.Join(t.TempDir(), "missing-node"),
		DriverPath: filepath.Join(t.TempDir(), "missing-cli.js"),
	})
	require.Error(t, err)
}
