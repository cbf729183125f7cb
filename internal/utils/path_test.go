package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := ResolvePath("")
		assert.Error(t, err)
	})

	t.Run("relative", func(t *testing.T) {
		got, err := ResolvePath("./data/../data")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got))
		assert.Equal(t, "data", filepath.Base(got))
	})

	t.Run("absolute", func(t *testing.T) {
		got, err := ResolvePath("/tmp/drift")
		require.NoError(t, err)
		assert.Equal(t, filepath.Clean("/tmp/drift"), got)
	})

	t.Run("home expansion", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		got, err := ResolvePath("~/drift-data")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "drift-data"), got)

		got, err = ResolvePath("~")
		require.NoError(t, err)
		assert.Equal(t, home, got)
	})
}

func TestEnsureDir(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, EnsureDir(nested))
	assert.DirExists(t, nested)

	// second call is a no-op
	require.NoError(t, EnsureDir(nested))
}

func TestEnsureParent(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state", "drift.db")

	require.NoError(t, EnsureParent(file))
	assert.DirExists(t, filepath.Dir(file))
	assert.NoFileExists(t, file)

	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
}
