// Package mcp serves the vault tools to MCP clients over stdio by forwarding
// every call to the daemon.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/alucardeht/memvault/internal/logger"
	"github.com/alucardeht/memvault/internal/tools"
)

var log = logger.ForComponent("mcp")

// Backend is implemented by *daemon.Client.
type Backend interface {
	ListTools(ctx context.Context) ([]tools.Info, error)
	CallTool(ctx context.Context, name string, args interface{}, result interface{}) error
}

type Server struct {
	backend Backend
	name    string
	version string
}

func NewServer(backend Backend, name, version string) *Server {
	return &Server{
		backend: backend,
		name:    name,
		version: version,
	}
}

// Serve speaks newline-delimited JSON-RPC on rwc until the peer goes away or
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))

	select {
	case <-conn.DisconnectNotify():
		return nil
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		log.Debug("client initialized")
		return nil, nil
	case "ping":
		return map[string]interface{}{}, nil
	case "tools/list":
		infos, err := s.backend.ListTools(ctx)
		if err != nil {
			return nil, backendError(err)
		}
		return &ListToolsResponse{Tools: infos}, nil
	case "tools/call":
		return s.handleCallTool(ctx, req)
	default:
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

func (s *Server) handleInitialize(req *jsonrpc2.Request) (interface{}, error) {
	var params InitializeRequest
	if req.Params != nil {
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: fmt.Sprintf("failed to parse initialize request: %v", err)}
		}
	}

	log.Info("client connected", "client", params.ClientInfo.Name, "client_version", params.ClientInfo.Version)

	return &InitializeResponse{
		ProtocolVersion: negotiateProtocolVersion(params.ProtocolVersion),
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		ServerInfo: ClientInfo{Name: s.name, Version: s.version},
	}, nil
}

func negotiateProtocolVersion(clientVersion string) string {
	for _, v := range SupportedProtocolVersions {
		if clientVersion == v {
			return v
		}
	}
	return ProtocolVersion
}

// Tool failures are reported in the result with isError so the model can
// read them; only unknown tools and transport failures are protocol errors.
func (s *Server) handleCallTool(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	if req.Params == nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	var call CallToolRequest
	if err := json.Unmarshal(*req.Params, &call); err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: fmt.Sprintf("failed to parse tool call request: %v", err)}
	}
	if call.Name == "" {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "tool name is required"}
	}

	var args interface{}
	if len(call.Arguments) > 0 {
		args = call.Arguments
	}

	var result json.RawMessage
	if err := s.backend.CallTool(ctx, call.Name, args, &result); err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) && rpcErr.Code != tools.CodeMethodMissing {
			return &CallToolResponse{
				Content: []Content{{Type: "text", Text: rpcErr.Message}},
				IsError: true,
			}, nil
		}
		return nil, backendError(err)
	}

	return &CallToolResponse{
		Content: []Content{{Type: "text", Text: string(result)}},
	}, nil
}

func backendError(err error) error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: fmt.Sprintf("daemon unavailable: %v", err)}
}

// Stdio joins the process's stdin and stdout into one stream.
func Stdio() io.ReadWriteCloser {
	return stdio{}
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (stdio) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
