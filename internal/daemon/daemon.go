package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/alucardeht/memvault/internal/logger"
	"github.com/alucardeht/memvault/internal/tools"
)

var log = logger.ForComponent("daemon")

const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
	MethodPing      = "ping"
)

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type PingResult struct {
	Status        string  `json:"status"`
	PID           int     `json:"pid"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Tools         int     `json:"tools"`
}

type Daemon struct {
	socketPath   string
	listener     *SocketListener
	registry     *tools.Registry
	connections  map[*jsonrpc2.Conn]bool
	connMu       sync.Mutex
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	startTime    time.Time
}

func NewDaemon(socketPath string, registry *tools.Registry) *Daemon {
	return &Daemon{
		socketPath:  socketPath,
		registry:    registry,
		connections: make(map[*jsonrpc2.Conn]bool),
		shutdown:    make(chan struct{}),
		startTime:   time.Now(),
	}
}

// Start listens on the unix socket and serves connections in the background.
func (d *Daemon) Start(ctx context.Context) error {
	d.listener = NewSocketListener(d.socketPath)
	if err := d.listener.Start(); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.socketPath, err)
	}

	log.Info("daemon listening", "socket", d.socketPath, "tools", len(d.registry.Names()))

	d.wg.Add(1)
	go d.acceptConnections(ctx)

	return nil
}

func (d *Daemon) acceptConnections(ctx context.Context) {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("accept failed", "error", err)
			continue
		}

		go d.ServeConn(ctx, conn)
	}
}

// ServeConn runs one JSON-RPC session until the peer disconnects or the
// daemon shuts down. Requests on a connection are handled concurrently.
func (d *Daemon) ServeConn(ctx context.Context, netConn net.Conn) {
	stream := jsonrpc2.NewBufferedStream(netConn, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(d.handle)))

	d.connMu.Lock()
	d.connections[conn] = true
	d.connMu.Unlock()

	defer func() {
		d.connMu.Lock()
		delete(d.connections, conn)
		d.connMu.Unlock()
	}()

	select {
	case <-conn.DisconnectNotify():
	case <-d.shutdown:
		conn.Close()
	}
}

func (d *Daemon) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case MethodPing:
		return &PingResult{
			Status:        "ok",
			PID:           os.Getpid(),
			UptimeSeconds: d.Uptime().Seconds(),
			Tools:         len(d.registry.Names()),
		}, nil

	case MethodToolsList:
		return map[string]interface{}{"tools": d.registry.Infos()}, nil

	case MethodToolsCall:
		if req.Params == nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
		}
		var params CallParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
		}

		start := time.Now()
		result, err := d.registry.Execute(ctx, params.Name, params.Arguments)
		if err != nil {
			log.Warn("tool failed", "tool", params.Name, "error", err, "duration", time.Since(start))
			return nil, toRPCError(err)
		}
		log.Debug("tool executed", "tool", params.Name, "duration", time.Since(start))
		return result, nil

	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

func toRPCError(err error) *jsonrpc2.Error {
	var toolErr *tools.ToolError
	if errors.As(err, &toolErr) {
		return &jsonrpc2.Error{Code: int64(toolErr.Code), Message: toolErr.Message}
	}
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
}

func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		log.Info("daemon shutting down")
		close(d.shutdown)

		if d.listener != nil {
			d.listener.Close()
		}

		d.connMu.Lock()
		for conn := range d.connections {
			conn.Close()
		}
		d.connMu.Unlock()

		d.wg.Wait()
		os.Remove(d.socketPath)
	})
}

func (d *Daemon) Done() <-chan struct{} {
	return d.shutdown
}

func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.startTime)
}
