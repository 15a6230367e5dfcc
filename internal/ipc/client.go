package ipc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/hpungsan/minutes/internal/errors"
)

// DefaultTimeout bounds one request/response exchange.
const DefaultTimeout = 30 * time.Second

// Client sends requests to the daemon, one connection per request.
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient creates a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{path: path, timeout: DefaultTimeout}
}

// WithTimeout returns a copy of the client using timeout per exchange.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	cp := *c
	cp.timeout = timeout
	return &cp
}

// Send performs one exchange and returns the raw response, including error
// responses. An unreachable socket is reported as DAEMON_NOT_RUNNING.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		if isNotRunning(err) {
			return nil, errors.NewDaemonNotRunning(c.path)
		}
		return nil, errors.NewIPC("connect to daemon", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if err := WriteFrame(conn, req); err != nil {
		return nil, errors.NewIPC("send request", err)
	}
	body, err := ReadFrame(conn)
	if err != nil {
		return nil, errors.NewIPC("read response", err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewIPC("malformed response", err)
	}
	return &resp, nil
}

// Call is Send that turns error responses into errors.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Ping reports whether a daemon answers on the socket.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Call(ctx, Request{Type: ReqPing})
	if err != nil {
		return err
	}
	if resp.Type != RespPong {
		return errors.NewIPC("unexpected response to ping: "+string(resp.Type), nil)
	}
	return nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	resp, err := c.Call(ctx, Request{Type: ReqGetStatus})
	if err != nil {
		return nil, err
	}
	if resp.Status == nil {
		return nil, errors.NewIPC("status response without status", nil)
	}
	return resp.Status, nil
}

func isNotRunning(err error) bool {
	return stderrors.Is(err, os.ErrNotExist) ||
		stderrors.Is(err, syscall.ENOENT) ||
		stderrors.Is(err, syscall.ECONNREFUSED)
}
