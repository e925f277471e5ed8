package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/alucardeht/memvault/internal/tools"
)

type Client struct {
	conn *jsonrpc2.Conn
}

// Dial connects to a running daemon.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	netConn, err := NewSocketConnector(socketPath).Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	return NewClient(ctx, netConn), nil
}

func NewClient(ctx context.Context, netConn net.Conn) *Client {
	stream := jsonrpc2.NewBufferedStream(netConn, jsonrpc2.VSCodeObjectCodec{})
	return &Client{
		conn: jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(refuseRequests)),
	}
}

// the daemon never calls back into clients
func refuseRequests(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "client accepts no requests"}
}

func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	var result PingResult
	if err := c.conn.Call(ctx, MethodPing, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListTools(ctx context.Context) ([]tools.Info, error) {
	var result struct {
		Tools []tools.Info `json:"tools"`
	}
	if err := c.conn.Call(ctx, MethodToolsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool runs a tool and decodes its result into result, which may be a
// *json.RawMessage. Tool failures come back as *jsonrpc2.Error.
func (c *Client) CallTool(ctx context.Context, name string, args interface{}, result interface{}) error {
	params := CallParams{Name: name}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encode arguments: %w", err)
		}
		params.Arguments = raw
	}
	return c.conn.Call(ctx, MethodToolsCall, params, result)
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
