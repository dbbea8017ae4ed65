package store

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"impressionism/internal/logging"
)

// fileLock is an advisory flock at the catalog root. Writers across
// processes serialize on it; readers never take it and rely on SQLite
// snapshot semantics.
type fileLock struct {
	path    string
	timeout time.Duration
	file    *os.File
}

func newFileLock(path string, timeout time.Duration) *fileLock {
	return &fileLock{path: path, timeout: timeout}
}

// Acquire blocks up to the configured timeout, polling the lock, then
// fails with ErrStoreBusy.
func (l *fileLock) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open lock file: %v", ErrStoreUnavailable, err)
	}

	deadline := time.Now().Add(l.timeout)
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.file = f
			return nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			f.Close()
			return fmt.Errorf("%w: flock: %v", ErrStoreUnavailable, err)
		}
		if time.Now().After(deadline) {
			f.Close()
			logging.Get(logging.CategoryStore).Warnf("lock %s still held after %s", l.path, l.timeout)
			return ErrStoreBusy
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Release drops the lock. Safe to call when not held.
func (l *fileLock) Release() {
	if l.file == nil {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
}
