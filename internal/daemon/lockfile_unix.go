//go:build unix

package daemon

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

func (l *LockFile) platformLock(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return ErrLockHeld
	}
	return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
}

func (l *LockFile) platformUnlock(f *os.File) {
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
