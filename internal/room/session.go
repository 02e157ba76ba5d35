package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalgynirae/sudoku/internal/broadcast"
	"github.com/kalgynirae/sudoku/internal/cursor"
	"github.com/kalgynirae/sudoku/internal/metrics"
	"github.com/kalgynirae/sudoku/internal/protocol"
)

// Conn is the minimal socket surface the session protocol needs. It
// exists so this package can be tested without a real WebSocket;
// internal/transport supplies the gobwas/ws-backed implementation.
type Conn interface {
	// ReadMessage blocks for the next client frame. isBinary reports
	// whether the frame was a binary (as opposed to text) frame.
	ReadMessage(ctx context.Context) (data []byte, isBinary bool, err error)
	// WriteMessage sends one text frame.
	WriteMessage(ctx context.Context, data []byte) error
}

// Severity classifies a session-ending error for the caller's logging
// decision. classify marks a ReceivedBinaryMessageError as
// SeverityError and every other error as SeverityWarn; response
// encoding failures and cursor-receive failures are not told apart
// from transport errors.
type Severity int

const (
	SeverityWarn Severity = iota
	SeverityError
)

// SessionError wraps the error that ended a session with its
// classification.
type SessionError struct {
	Err      error
	Severity Severity
}

func (e *SessionError) Error() string { return e.Err.Error() }
func (e *SessionError) Unwrap() error { return e.Err }

// RunSession drives one connection's three cooperative tasks (request
// receiver, diff broadcast receiver, cursor notify receiver) to
// completion. It returns once any one of them exits, after canceling
// the others via ctx. The caller is responsible for sending the
// initial "init" frame and for closing conn.
func RunSession(ctx context.Context, room *State, sess *Session, conn Conn) *SessionError {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		err error
	}
	done := make(chan result, 3)

	proto := &sessionProtocol{room: room, sess: sess, conn: conn}

	go func() { done <- result{proto.receiveRequests(ctx)} }()
	go func() { done <- result{proto.receiveDiffBroadcasts(ctx)} }()
	go func() { done <- result{proto.receiveCursorUpdates(ctx)} }()

	first := <-done
	cancel()
	// Drain the other two so their goroutines don't leak.
	<-done
	<-done

	if first.err == nil {
		return nil
	}
	return &SessionError{Err: first.err, Severity: classify(first.err)}
}

func classify(err error) Severity {
	var rb *ReceivedBinaryMessageError
	if errors.As(err, &rb) {
		return SeverityError
	}
	return SeverityWarn
}

type sessionProtocol struct {
	room *State
	sess *Session
	conn Conn

	// lastSentSyncID records the syncId of the most recent applyDiffs
	// request this session's client sent. A lag-recovery fullUpdate
	// reports it.
	lastSentSyncID *uint64
}

func (p *sessionProtocol) send(ctx context.Context, resp protocol.Response) error {
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("room: encode response: %w", err)
	}
	if err := p.conn.WriteMessage(ctx, data); err != nil {
		return err
	}
	return nil
}

func (p *sessionProtocol) sendError(ctx context.Context, message string) error {
	return p.send(ctx, protocol.ErrorResponse{Message: message})
}

// receiveRequests reads client frames and dispatches them.
func (p *sessionProtocol) receiveRequests(ctx context.Context) error {
	for {
		data, isBinary, err := p.conn.ReadMessage(ctx)
		if err != nil {
			return err
		}
		if isBinary {
			if sendErr := p.sendError(ctx, (&ReceivedBinaryMessageError{}).Error()); sendErr != nil {
				return sendErr
			}
			continue
		}
		req, err := protocol.DecodeRequest(data)
		if err != nil {
			if sendErr := p.sendError(ctx, err.Error()); sendErr != nil {
				return sendErr
			}
			continue
		}
		if err := p.handleRequest(ctx, req); err != nil {
			if sendErr := p.sendError(ctx, err.Error()); sendErr != nil {
				return sendErr
			}
		}
	}
}

func (p *sessionProtocol) handleRequest(ctx context.Context, req protocol.Request) error {
	switch r := req.(type) {
	case protocol.SetBoardStateRequest:
		p.room.SetBoardState(r.BoardState)
		return nil
	case protocol.ApplyDiffsRequest:
		syncID := r.SyncID
		p.lastSentSyncID = &syncID
		return p.room.ApplyDiffs(p.sess.SessionID, r.SyncID, r.Diffs)
	case protocol.UpdateCursorRequest:
		if err := p.sess.Cursor.Tx.Update(r.Selection); err != nil {
			return fmt.Errorf("room: update cursor: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("room: unhandled request type %T", req)
	}
}

// receiveDiffBroadcasts forwards board diff broadcasts as either a
// partialUpdate (normal) or a fullUpdate (after a lag, where the
// broadcast backlog is no longer reconstructable).
func (p *sessionProtocol) receiveDiffBroadcasts(ctx context.Context) error {
	rx := p.sess.DiffRx
	// ackedSyncID is the syncId of the latest of this session's own edits
	// seen echoed back on the broadcast; every partialUpdate carries it.
	var ackedSyncID *uint64
	for {
		msg, err := rx.Recv(ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			if errors.As(err, &lagged) {
				metrics.IncBroadcastLag()
				rx.Close()
				rx = p.room.NewSessionlessReceiver()
				p.sess.DiffRx = rx
				ackedSyncID = p.lastSentSyncID
				if err := p.send(ctx, protocol.FullUpdateResponse{
					SyncID:     ackedSyncID,
					BoardState: p.room.Board(),
				}); err != nil {
					return err
				}
				continue
			}
			return err
		}

		if msg.SenderID == p.sess.SessionID {
			id := msg.SyncID
			ackedSyncID = &id
		}
		if err := p.send(ctx, protocol.PartialUpdateResponse{
			SyncID: ackedSyncID,
			Diffs:  msg.BoardDiffs,
		}); err != nil {
			return err
		}
	}
}

// receiveCursorUpdates forwards every change to the cursor map,
// scoped to this session's own view.
func (p *sessionProtocol) receiveCursorUpdates(ctx context.Context) error {
	for {
		view, err := p.sess.Cursor.Rx.Recv(ctx)
		if err != nil {
			if errors.Is(err, cursor.ErrClosed) {
				return nil
			}
			return fmt.Errorf("room: receive cursor update: %w", err)
		}
		if err := p.send(ctx, protocol.UpdateCursorResponse{Map: view}); err != nil {
			return err
		}
	}
}
