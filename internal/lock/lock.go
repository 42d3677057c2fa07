// Package lock provides a non-blocking, process-exclusive advisory lock
// backed by a file. The operating system drops the lock when the process
// exits, however it exits.
package lock

import (
	"errors"
	"fmt"
	"os"
)

// ErrWouldBlock is returned when another process already holds the lock.
var ErrWouldBlock = errors.New("file lock would block")

// Lock is a held lock. The zero value is not usable.
type Lock struct {
	file *os.File
}

// Acquire creates or opens path and takes an exclusive lock on it without
// waiting. The lock file is left in place on release so that a concurrent
// opener never locks an unlinked inode.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	return &Lock{file: f}, nil
}

// Path returns the lock file's path.
func (l *Lock) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Release drops the lock. Calling it more than once is safe.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return errors.Join(unlockFile(f), f.Close())
}
