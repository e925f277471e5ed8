package daemon

import (
	"fmt"
	"path/filepath"
)

// LifecycleManager guards a single daemon instance per base directory.
type LifecycleManager struct {
	lockFile   *LockFile
	pidFile    *PIDFile
	socketPath string
}

func NewLifecycleManager(baseDir, socketPath string) *LifecycleManager {
	return &LifecycleManager{
		lockFile:   NewLockFile(filepath.Join(baseDir, "daemon.lock")),
		pidFile:    NewPIDFile(filepath.Join(baseDir, "daemon.pid")),
		socketPath: socketPath,
	}
}

// Start takes the instance lock and records the pid. A live socket with a
// free lock means another daemon lost its lock file; refuse to shadow it.
func (lm *LifecycleManager) Start() error {
	if err := lm.lockFile.Acquire(); err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}

	if lm.SocketResponsive() {
		lm.lockFile.Release()
		return fmt.Errorf("%w: socket %s is answering", ErrLockHeld, lm.socketPath)
	}

	if err := lm.pidFile.Write(); err != nil {
		lm.lockFile.Release()
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

func (lm *LifecycleManager) SocketResponsive() bool {
	return probeSocket(lm.socketPath)
}

// Running reports the pid of a live daemon, or 0.
func (lm *LifecycleManager) Running() int {
	pid, err := lm.pidFile.Read()
	if err != nil || pid == 0 || !processExists(pid) {
		return 0
	}
	return pid
}

func (lm *LifecycleManager) Cleanup() {
	lm.pidFile.Remove()
	lm.lockFile.Release()
}
