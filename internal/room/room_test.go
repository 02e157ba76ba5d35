package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/protocol"
	"github.com/kalgynirae/sudoku/internal/roomid"
)

func testLimits() Limits {
	return Limits{MaxSessionsPerRoom: 2, MaxBoardDiffGroupSize: 4, MaxBoardDiffGroupQueue: 4}
}

func TestNewSessionAllocatesIncreasingIDs(t *testing.T) {
	r := New(mustRoomID(t), testLimits())
	s1, err := r.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	s2, err := r.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	if s1.SessionID != 1 || s2.SessionID != 2 {
		t.Fatalf("expected session ids 1, 2; got %d, %d", s1.SessionID, s2.SessionID)
	}
}

func TestNewSessionRoomFull(t *testing.T) {
	r := New(mustRoomID(t), testLimits())
	if _, err := r.NewSession(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.NewSession(); err != nil {
		t.Fatal(err)
	}
	_, err := r.NewSession()
	var full *RoomFullError
	if !errors.As(err, &full) {
		t.Fatalf("expected RoomFullError, got %v", err)
	}
}

func TestApplyDiffsTooMany(t *testing.T) {
	r := New(mustRoomID(t), testLimits())
	diffs := make([]board.Diff, 5)
	for i := range diffs {
		diffs[i] = board.Diff{Squares: []int{0}, Operation: board.SetNumber{}}
	}
	err := r.ApplyDiffs(1, 1, diffs)
	var tooMany *TooManyBoardDiffsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("expected TooManyBoardDiffsError, got %v", err)
	}
}

func TestApplyDiffsBroadcastsToSubscriber(t *testing.T) {
	r := New(mustRoomID(t), testLimits())
	sess, err := r.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	digit := board.Digit(5)
	if err := r.ApplyDiffs(sess.SessionID, 1, []board.Diff{
		{Squares: []int{3}, Operation: board.SetNumber{Digit: &digit}},
	}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := sess.DiffRx.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if msg.SenderID != sess.SessionID || msg.SyncID != 1 {
		t.Fatalf("unexpected broadcast %+v", msg)
	}
	snapshot := r.Board()
	if snapshot.Squares[3].Number == nil || *snapshot.Squares[3].Number != 5 {
		t.Fatalf("expected square 3 set to 5, got %+v", snapshot.Squares[3])
	}
}

// fakeConn is an in-memory Conn for exercising RunSession without a
// real socket: inbound frames are fed on a channel, outbound frames
// are collected on another.
type fakeConn struct {
	in  chan []byte
	out chan []byte
	mu  sync.Mutex
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 8), out: make(chan []byte, 8)}
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, bool, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, false, errors.New("fakeConn: closed")
		}
		return data, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *fakeConn) WriteMessage(ctx context.Context, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRunSessionAppliesDiffAndEchoesSyncID(t *testing.T) {
	r := New(mustRoomID(t), testLimits())
	sess, err := r.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	conn := newFakeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result := make(chan *SessionError, 1)
	go func() { result <- RunSession(ctx, r, sess, conn) }()

	digit := board.Digit(7)
	req, err := protocol.EncodeRequest(protocol.ApplyDiffsRequest{
		SyncID: 42,
		Diffs: []board.Diff{
			{Squares: []int{0}, Operation: board.SetNumber{Digit: &digit}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	conn.in <- req

	resp := nextNonCursorFrame(t, ctx, conn, "timed out waiting for response")
	pu, ok := resp.(protocol.PartialUpdateResponse)
	if !ok {
		t.Fatalf("expected PartialUpdateResponse, got %T", resp)
	}
	if pu.SyncID == nil || *pu.SyncID != 42 {
		t.Fatalf("expected syncId 42 echoed back, got %+v", pu.SyncID)
	}

	cancel()
	<-result
}

func TestRunSessionKeepsGoingAfterBinaryFrame(t *testing.T) {
	r := New(mustRoomID(t), testLimits())
	sess, err := r.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	conn := &binaryOnceConn{fakeConn: newFakeConn()}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result := make(chan *SessionError, 1)
	go func() { result <- RunSession(ctx, r, sess, conn) }()

	errResp := nextNonCursorFrame(t, ctx, conn.fakeConn, "timed out waiting for the binary-frame error response")
	if _, ok := errResp.(protocol.ErrorResponse); !ok {
		t.Fatalf("expected ErrorResponse, got %T", errResp)
	}

	// The session must still be alive: a normal request afterward is
	// processed rather than the socket having been closed.
	digit := board.Digit(4)
	req, err := protocol.EncodeRequest(protocol.ApplyDiffsRequest{
		SyncID: 1,
		Diffs: []board.Diff{
			{Squares: []int{0}, Operation: board.SetNumber{Digit: &digit}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	conn.in <- req

	resp := nextNonCursorFrame(t, ctx, conn.fakeConn, "timed out waiting for the post-binary-frame response")
	if _, ok := resp.(protocol.PartialUpdateResponse); !ok {
		t.Fatalf("expected PartialUpdateResponse, got %T", resp)
	}

	cancel()
	<-result
}

// nextNonCursorFrame returns the next frame written to conn that is not
// an updateCursor frame. The cursor task sends one as soon as
// RunSession starts, so it can arrive ahead of the frame a test waits
// for.
func nextNonCursorFrame(t *testing.T, ctx context.Context, conn *fakeConn, timeoutMsg string) protocol.Response {
	t.Helper()
	for {
		select {
		case data := <-conn.out:
			resp, err := protocol.DecodeResponse(data)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := resp.(protocol.UpdateCursorResponse); ok {
				continue
			}
			return resp
		case <-ctx.Done():
			t.Fatal(timeoutMsg)
		}
	}
}

type binaryOnceConn struct {
	*fakeConn
	sent bool
}

func (c *binaryOnceConn) ReadMessage(ctx context.Context) ([]byte, bool, error) {
	if !c.sent {
		c.sent = true
		return []byte{0x01, 0x02}, true, nil
	}
	return c.fakeConn.ReadMessage(ctx)
}

func mustRoomID(t *testing.T) roomid.ID {
	t.Helper()
	id, err := roomid.New()
	if err != nil {
		t.Fatal(err)
	}
	return id
}
