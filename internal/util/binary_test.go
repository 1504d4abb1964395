package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestFindBinary(t *testing.T) {
	t.Run("env var wins over PATH", func(t *testing.T) {
		path := writeExecutable(t, t.TempDir(), "fake-encoder")
		t.Setenv("AUTOREC_TEST_BINARY", path)

		// "ls" exists on PATH but the override must win.
		got, err := FindBinary("ls", "AUTOREC_TEST_BINARY")
		require.NoError(t, err)
		assert.Equal(t, path, got)
	})

	t.Run("non-executable env var path is skipped", func(t *testing.T) {
		dir := t.TempDir()
		plain := filepath.Join(dir, "not-executable")
		require.NoError(t, os.WriteFile(plain, []byte("data"), 0o644))
		t.Setenv("AUTOREC_TEST_BINARY", plain)

		got, err := FindBinary("ls", "AUTOREC_TEST_BINARY")
		require.NoError(t, err)
		assert.NotEqual(t, plain, got)
	})

	t.Run("missing env var path falls through to PATH", func(t *testing.T) {
		t.Setenv("AUTOREC_TEST_BINARY", "/no/such/binary")

		got, err := FindBinary("ls", "AUTOREC_TEST_BINARY")
		require.NoError(t, err)
		assert.NotEmpty(t, got)
	})

	t.Run("PATH lookup without env var", func(t *testing.T) {
		got, err := FindBinary("ls", "")
		require.NoError(t, err)
		assert.Contains(t, got, "ls")
	})

	t.Run("directories are not binaries", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("AUTOREC_TEST_BINARY", dir)

		_, err := FindBinary("surely-not-on-path-anywhere", "AUTOREC_TEST_BINARY")
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("not found anywhere", func(t *testing.T) {
		_, err := FindBinary("surely-not-on-path-anywhere", "")
		assert.ErrorContains(t, err, "not found")
	})
}
