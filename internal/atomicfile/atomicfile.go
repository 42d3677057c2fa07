// Package atomicfile replaces files so that readers only ever observe the
// previous complete version or the new complete version.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// testHookCrashBeforeRename, when set, runs after the temp file is durable
// and before it is renamed over the target.
var testHookCrashBeforeRename func()

// RenameError is returned when the final rename fails. The temp file has
// already been removed when this is returned.
type RenameError struct {
	Err      error
	TempPath string
}

func (e RenameError) Error() string {
	return fmt.Sprintf("failed to rename %s into place: %v", e.TempPath, e.Err)
}

func (e RenameError) Unwrap() error {
	return e.Err
}

// WriteFile writes data to a temp file in filename's directory, syncs it to
// disk and renames it over filename.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Same directory so the rename never crosses a filesystem.
	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	var success bool
	defer func() {
		if !success {
			if err := os.Remove(tempFile.Name()); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", tempFile.Name()).Msg("failed to remove temporary file")
			}
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file %q: %w", tempFile.Name(), err)
	}
	if err := os.Chmod(tempFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if testHookCrashBeforeRename != nil {
		testHookCrashBeforeRename()
	}

	// os.Rename maps to MoveFileEx with MOVEFILE_REPLACE_EXISTING on Windows.
	if err := os.Rename(tempFile.Name(), filename); err != nil {
		return RenameError{Err: err, TempPath: tempFile.Name()}
	}
	success = true

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry so the rename itself survives a crash.
// Not every platform supports fsync on a directory; failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
