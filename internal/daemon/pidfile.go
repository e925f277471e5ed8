package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type PIDFile struct {
	path string
}

func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Write records the current process id. A stale file is replaced, a symlink
// is refused.
func (p *PIDFile) Write() error {
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if os.IsExist(err) {
		if info, lerr := os.Lstat(p.path); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("pid file %s is a symlink", p.path)
		}
		os.Remove(p.path)
		f, err = os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	}
	if err != nil {
		return fmt.Errorf("failed to create pid file: %w", err)
	}
	defer f.Close()

	_, err = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	return err
}

// Read returns 0 when no pid has been recorded.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return 0, nil
	}

	pid, err := strconv.Atoi(content)
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", p.path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d in %s", pid, p.path)
	}
	return pid, nil
}

func (p *PIDFile) Remove() error {
	if info, err := os.Lstat(p.path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing to remove pid file %s: is a symlink", p.path)
	}
	err := os.Remove(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
