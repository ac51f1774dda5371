package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Client sends requests to a running host.
type Client struct {
	sockPath string
}

// NewClient creates a Client for sockPath.
func NewClient(sockPath string) *Client {
	return &Client{sockPath: sockPath}
}

// Ping reports whether a host is listening.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.send(ctx, Request{Type: TypePing})
	return err
}

// Handoff forwards a hand-off reference and returns the outcome. It waits
// for the user when the running host asks for confirmation.
func (c *Client) Handoff(ctx context.Context, ref string) (string, error) {
	resp, err := c.send(ctx, Request{Type: TypeHandoff, Ref: ref})
	if err != nil {
		return "", fmt.Errorf("hand-off request failed: %w", err)
	}
	return resp.Message, nil
}

// MenuAction activates a menu entry by name.
func (c *Client) MenuAction(ctx context.Context, name string) error {
	if _, err := c.send(ctx, Request{Type: TypeMenuAction, Action: name}); err != nil {
		return fmt.Errorf("menu request failed: %w", err)
	}
	return nil
}

// Load asks the host to load a document of the given size.
func (c *Client) Load(ctx context.Context, path string, size int64) error {
	if _, err := c.send(ctx, Request{Type: TypeLoad, Path: path, Size: size}); err != nil {
		return fmt.Errorf("load request failed: %w", err)
	}
	return nil
}

// send opens a connection, writes the request, reads one response, and closes.
func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.sockPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to phasorviz at %s: %w (is it running?)", c.sockPath, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read failed: %w", err)
		}
		return nil, errors.New("phasorviz closed connection")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse response failed: %w", err)
	}
	if resp.Type == TypeError {
		return nil, fmt.Errorf("phasorviz error (code %d): %s", resp.Code, resp.Message)
	}
	return &resp, nil
}
