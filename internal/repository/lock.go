package repository

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// FileLock is an exclusive flock(2) held on a lock file
type FileLock struct {
	f    *os.File
	once sync.Once
	err  error
}

// AcquireLock opens (creating if needed) the lock file at path and blocks
// until an exclusive lock is held. There is no timeout.
func AcquireLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	logrus.Debugf("Acquired repository lock %s", path)
	return &FileLock{f: f}, nil
}

// Unlock releases the lock. Only the first call has an effect.
func (l *FileLock) Unlock() error {
	l.once.Do(func() {
		name := l.f.Name()
		if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
			l.err = fmt.Errorf("failed to unlock %s: %w", name, err)
		}
		if err := l.f.Close(); err != nil && l.err == nil {
			l.err = err
		}
		logrus.Debugf("Released repository lock %s", name)
	})
	return l.err
}
