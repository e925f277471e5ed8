package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

var ErrSocketInUse = errors.New("socket already served by another process")

const probeTimeout = 500 * time.Millisecond

// SocketListener owns the daemon's unix socket file for the lifetime of the
// listener.
type SocketListener struct {
	path     string
	listener net.Listener
}

func NewSocketListener(socketPath string) *SocketListener {
	return &SocketListener{path: socketPath}
}

// Start removes a stale socket file left by a crashed daemon, but never one
// that still accepts connections. The new socket is private to the owner.
func (sl *SocketListener) Start() error {
	if err := os.MkdirAll(filepath.Dir(sl.path), 0700); err != nil {
		return err
	}

	if _, err := os.Lstat(sl.path); err == nil {
		if probeSocket(sl.path) {
			return fmt.Errorf("%w: %s", ErrSocketInUse, sl.path)
		}
		if err := os.Remove(sl.path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", sl.path)
	if err != nil {
		return err
	}
	sl.listener = listener

	if err := os.Chmod(sl.path, 0700); err != nil {
		listener.Close()
		return err
	}
	return nil
}

func (sl *SocketListener) Accept() (net.Conn, error) {
	if sl.listener == nil {
		return nil, fmt.Errorf("listener not started")
	}
	return sl.listener.Accept()
}

func (sl *SocketListener) Close() error {
	if sl.listener == nil {
		return nil
	}
	return sl.listener.Close()
}

func probeSocket(path string) bool {
	conn, err := net.DialTimeout("unix", path, probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

type SocketConnector struct {
	path   string
	dialer net.Dialer
}

func NewSocketConnector(socketPath string) *SocketConnector {
	return &SocketConnector{
		path:   socketPath,
		dialer: net.Dialer{Timeout: 2 * time.Second},
	}
}

func (sc *SocketConnector) Connect(ctx context.Context) (net.Conn, error) {
	return sc.dialer.DialContext(ctx, "unix", sc.path)
}
