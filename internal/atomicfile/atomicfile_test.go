package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	t.Run("creates the file", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "state.json")

		require.NoError(t, WriteFile(filename, []byte("hello"), 0600))

		data, err := os.ReadFile(filename)
		require.NoError(t, err)
		require.Equal(t, "hello", string(data))

		info, err := os.Stat(filename)
		require.NoError(t, err)
		if os.PathSeparator == '/' {
			require.Equal(t, os.FileMode(0600), info.Mode().Perm())
		}
	})

	t.Run("replaces an existing file", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(filename, []byte("old contents that are longer"), 0600))

		require.NoError(t, WriteFile(filename, []byte("new"), 0600))

		data, err := os.ReadFile(filename)
		require.NoError(t, err)
		require.Equal(t, "new", string(data))
	})

	t.Run("creates missing directories", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "a", "b", "state.json")
		require.NoError(t, WriteFile(filename, []byte("x"), 0600))
		require.FileExists(t, filename)
	})

	t.Run("rename failure removes the temp file", func(t *testing.T) {
		dir := t.TempDir()
		filename := filepath.Join(dir, "state.json")
		// A non-empty directory at the target path makes the rename fail.
		require.NoError(t, os.MkdirAll(filepath.Join(filename, "child"), 0755))

		err := WriteFile(filename, []byte("x"), 0600)
		require.Error(t, err)
		var renameErr RenameError
		require.True(t, errors.As(err, &renameErr))

		requireNoTempFiles(t, dir)
	})
}

func TestWriteFileCrashBeforeRename(t *testing.T) {
	for _, existing := range []bool{true, false} {
		name := "no previous file"
		if existing {
			name = "previous file kept"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			filename := filepath.Join(dir, "state.json")
			if existing {
				require.NoError(t, os.WriteFile(filename, []byte("previous"), 0600))
			}

			testHookCrashBeforeRename = func() { panic("simulated crash") }
			t.Cleanup(func() { testHookCrashBeforeRename = nil })

			require.Panics(t, func() {
				_ = WriteFile(filename, []byte("partial replacement"), 0600)
			})

			if existing {
				data, err := os.ReadFile(filename)
				require.NoError(t, err)
				require.Equal(t, "previous", string(data))
			} else {
				require.NoFileExists(t, filename)
			}
		})
	}
}

func requireNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.Contains(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}
