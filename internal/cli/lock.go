package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// lockTimeout bounds how long a command waits for another storysync
// process working on the same document.
const lockTimeout = 5 * time.Second

const lockFilePerms = 0o644

// Lock errors.
var (
	errLockTimeout  = errors.New("lock timeout")
	errLockFileOpen = errors.New("failed to open lock file")
)

// withDocumentLock runs handler while holding an exclusive lock on
// <path>.lock. Two concurrent syncs of the same document would
// interleave their read-modify-write cycles against the tracker; the
// lock serializes them per machine. The lock is released when handler
// returns.
func withDocumentLock(path string, handler func() error) error {
	lock, lockErr := acquireLock(path, lockTimeout)
	if lockErr != nil {
		return fmt.Errorf("acquiring lock: %w", lockErr)
	}

	defer lock.release()

	return handler()
}

// fileLock represents a lock on a document.
type fileLock struct {
	path string
	file *os.File
}

// release releases the lock and removes the lock file.
// Order matters: remove while holding lock, then unlock, then close.
func (l *fileLock) release() {
	if l.file != nil {
		_ = os.Remove(l.path)
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		_ = l.file.Close()
		l.file = nil
	}
}

// acquireLock tries to acquire an exclusive flock on <path>.lock.
// Handles the race between flock acquisition and lock file deletion by
// verifying the inode after acquiring the lock.
func acquireLock(path string, timeout time.Duration) (*fileLock, error) {
	lockPath := path + ".lock"
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s", errLockTimeout, path)
		}

		file, openErr := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, lockFilePerms)
		if openErr != nil {
			return nil, fmt.Errorf("%w: %w", errLockFileOpen, openErr)
		}

		// Get inode of the file we opened.
		var openStat unix.Stat_t

		fstatErr := unix.Fstat(int(file.Fd()), &openStat)
		if fstatErr != nil {
			_ = file.Close()

			return nil, fmt.Errorf("fstat lock file: %w", fstatErr)
		}

		fd := int(file.Fd())
		done := make(chan error, 1)

		go func() {
			done <- unix.Flock(fd, unix.LOCK_EX)
		}()

		select {
		case flockErr := <-done:
			if flockErr != nil {
				_ = file.Close()

				return nil, fmt.Errorf("flock: %w", flockErr)
			}

			// Verify the file at the path still has the same inode.
			// If not, someone deleted and recreated it while we were waiting.
			var pathStat unix.Stat_t

			statErr := unix.Stat(lockPath, &pathStat)
			if statErr != nil || pathStat.Ino != openStat.Ino {
				// File was deleted/replaced, retry with new file.
				_ = unix.Flock(fd, unix.LOCK_UN)
				_ = file.Close()

				continue
			}

			return &fileLock{path: lockPath, file: file}, nil
		case <-time.After(remaining):
			_ = file.Close()

			return nil, fmt.Errorf("%w: %s", errLockTimeout, path)
		}
	}
}
