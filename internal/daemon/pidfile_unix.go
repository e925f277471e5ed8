//go:build unix

package daemon

import "syscall"

// signal 0 probes for existence without delivering anything
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
