package persist

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked indicates another process holds the session file lock.
var ErrLocked = errors.New("session file is locked by another process")

// Lock is an advisory exclusive lock next to the session file.
type Lock struct {
	file *os.File
}

// Lock takes the lock on <path>.lock without blocking.
func (s *Store) Lock() (*Lock, error) {
	path := s.path + ".lock"
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			s.log.Warn("session lock busy", "lock", path)
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, err
	}
	s.log.Debug("session lock acquired", "lock", path)
	return &Lock{file: file}, nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil
	return err
}
