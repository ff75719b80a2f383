package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client speaks the framed protocol to a running daemon. One connection
// per call keeps the CLI simple; the server supports both styles.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{SocketPath: socketPath, Timeout: 30 * time.Second}
}

// Send issues one request and decodes the response envelope.
func (c *Client) Send(command string, fields map[string]any) (map[string]any, error) {
	conn, err := net.DialTimeout("unix", c.SocketPath, c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.SocketPath, err)
	}
	defer func() { _ = conn.Close() }()
	if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	req := map[string]any{"command": command}
	for k, v := range fields {
		req[k] = v
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := WriteMessage(conn, payload); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	data, err := ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp map[string]any
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func (c *Client) Status() (map[string]any, error) { return c.Send("status", nil) }

func (c *Client) Start(name string) (map[string]any, error) {
	return c.Send("start", map[string]any{"name": name})
}

func (c *Client) Stop(name string) (map[string]any, error) {
	return c.Send("stop", map[string]any{"name": name})
}

func (c *Client) Restart(name string, force bool) (map[string]any, error) {
	return c.Send("restart", map[string]any{"name": name, "force": force})
}

func (c *Client) StartGroup(name string) (map[string]any, error) {
	return c.Send("startgroup", map[string]any{"name": name})
}

func (c *Client) StopGroup(name string) (map[string]any, error) {
	return c.Send("stopgroup", map[string]any{"name": name})
}

func (c *Client) Reload() (map[string]any, error) { return c.Send("reload", nil) }
