package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/kalgynirae/sudoku/internal/metrics"
	"github.com/kalgynirae/sudoku/internal/room"
)

// Socket limits named in the external interface: 512 KiB per message
// or frame, 1 MiB outstanding in the send queue.
const (
	maxMessageSize = 512 * 1024
	sendQueueDepth = 64 // approximates the 1 MiB send-queue bound at typical diff-message sizes
)

// errMessageTooLarge is returned by ReadMessage when a client frame
// exceeds maxMessageSize.
type errMessageTooLarge struct{ size int }

func (e *errMessageTooLarge) Error() string {
	return fmt.Sprintf("transport: client message of %d bytes exceeds the %d byte limit", e.size, maxMessageSize)
}

// wsConn adapts a gobwas/ws-upgraded net.Conn to room.Conn. Writes are
// serialized through a single background goroutine draining sendCh, so
// that RunSession's three concurrent tasks never race on the raw
// connection the way the teacher's writePump isolates writes from
// reads.
type wsConn struct {
	conn    net.Conn
	logger  zerolog.Logger
	limiter *sessionLimiter

	sendCh chan []byte
	doneCh chan struct{}
}

func newWSConn(conn net.Conn, limiter *sessionLimiter, logger zerolog.Logger) *wsConn {
	c := &wsConn{
		conn:    conn,
		logger:  logger,
		limiter: limiter,
		sendCh:  make(chan []byte, sendQueueDepth),
		doneCh:  make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := wsutil.WriteServerMessage(c.conn, ws.OpText, data); err != nil {
				c.logger.Warn().Err(err).Msg("write to client failed")
				return
			}
		case <-c.doneCh:
			return
		}
	}
}

// ReadMessage blocks for the next client text frame, transparently
// dropping ping frames and frames rejected by the session's rate
// limiter (the client is not disconnected for being rate limited, only
// slowed; matches the teacher's "drop but don't disconnect" policy).
func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, bool, error) {
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.SetReadDeadline(time.Now())
		case <-watchDone:
		}
	}()

	for {
		data, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			return nil, false, err
		}
		if len(data) > maxMessageSize {
			return nil, false, &errMessageTooLarge{size: len(data)}
		}

		switch op {
		case ws.OpPing, ws.OpPong:
			continue
		case ws.OpClose:
			return nil, false, fmt.Errorf("transport: client closed the connection")
		case ws.OpBinary:
			return data, true, nil
		case ws.OpText:
			if c.limiter != nil && !c.limiter.Allow() {
				metrics.IncSessionRejected(metrics.RejectReasonRateLimit)
				continue
			}
			return data, false, nil
		default:
			continue
		}
	}
}

// WriteMessage enqueues data for the write loop. While the queue is
// full (a slow consumer) it blocks until there is room or ctx is done.
func (c *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	select {
	case c.sendCh <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the write loop and the underlying connection.
func (c *wsConn) Close() error {
	close(c.doneCh)
	return c.conn.Close()
}

var _ room.Conn = (*wsConn)(nil)
