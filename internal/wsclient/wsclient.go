// Package wsclient is a small scripted WebSocket client used only by
// tests: it dials a room, round-trips protocol frames, and gives
// assertions a typed view of what came back. Grounded on the pack's
// gorilla/websocket-based load-test tooling, trimmed to one
// connection at a time instead of a ramped fleet.
package wsclient

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalgynirae/sudoku/internal/protocol"
)

// Client is one connected session driven from a test.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the realtime endpoint at urlStr (an ws://.../api/v1/realtime[/<roomId>] URL).
func Dial(urlStr string) (*Client, error) {
	if _, err := url.Parse(urlStr); err != nil {
		return nil, fmt.Errorf("wsclient: invalid url %q: %w", urlStr, err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("wsclient: dial %s: %w", urlStr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send encodes and sends one request frame.
func (c *Client) Send(req protocol.Request) error {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return fmt.Errorf("wsclient: encode request: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendBinary sends a raw binary frame, used by tests that exercise the
// server's binary-frame rejection.
func (c *Client) SendBinary(data []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Recv blocks (up to timeout) for the next response frame.
func (c *Client) Recv(timeout time.Duration) (protocol.Response, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("wsclient: read: %w", err)
	}
	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("wsclient: decode response: %w", err)
	}
	return resp, nil
}

// RecvInit is a convenience wrapper for the expected first frame on
// every connection.
func (c *Client) RecvInit(timeout time.Duration) (protocol.InitResponse, error) {
	resp, err := c.Recv(timeout)
	if err != nil {
		return protocol.InitResponse{}, err
	}
	init, ok := resp.(protocol.InitResponse)
	if !ok {
		return protocol.InitResponse{}, fmt.Errorf("wsclient: expected init, got %T", resp)
	}
	return init, nil
}
