package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/global"
	"github.com/kalgynirae/sudoku/internal/protocol"
	"github.com/kalgynirae/sudoku/internal/room"
	"github.com/kalgynirae/sudoku/internal/wsclient"
)

func testServer(t *testing.T) (*httptest.Server, *global.State) {
	t.Helper()
	g := global.New(nil, room.Limits{MaxSessionsPerRoom: 4, MaxBoardDiffGroupSize: 8, MaxBoardDiffGroupQueue: 32}, zerolog.Nop())
	cfg := Config{
		CPURejectThreshold: 100,
		MaxConnections:     0,
		SessionRatePerSec:  1000,
		SessionRateBurst:   1000,
	}
	srv := New(g, cfg, zerolog.Nop())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, g
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// recvNonCursor returns the next frame from c that is not an
// updateCursor frame. A session's own initial cursor frame and its
// peers' cursor updates can arrive ahead of the frame a test waits for.
func recvNonCursor(c *wsclient.Client, timeout time.Duration) (protocol.Response, error) {
	deadline := time.Now().Add(timeout)
	for {
		resp, err := c.Recv(time.Until(deadline))
		if err != nil {
			return nil, err
		}
		if _, ok := resp.(protocol.UpdateCursorResponse); ok {
			continue
		}
		return resp, nil
	}
}

func TestRealtimeNoIDMintsRoomAndSendsInit(t *testing.T) {
	ts, _ := testServer(t)
	c, err := wsclient.Dial(wsURL(ts, realtimePrefix))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	init, err := c.RecvInit(2 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if init.RoomID == "" {
		t.Fatal("expected a non-empty room id")
	}
	for _, sq := range init.BoardState.Squares {
		if sq.Number != nil {
			t.Fatalf("expected a fresh default board, got a populated square: %+v", sq)
		}
	}
}

func TestRealtimeUnknownRoomID404s(t *testing.T) {
	ts, _ := testServer(t)
	c, err := wsclient.Dial(wsURL(ts, realtimePrefix+"/rAAAAAAAAAAAAAAAAAAAAA"))
	if err == nil {
		c.Close()
		t.Fatal("expected dial to fail with a 404 handshake response")
	}
}

func TestApplyDiffsRoundTrip(t *testing.T) {
	ts, _ := testServer(t)
	a, err := wsclient.Dial(wsURL(ts, realtimePrefix))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	initA, err := a.RecvInit(2 * time.Second)
	if err != nil {
		t.Fatal(err)
	}

	b, err := wsclient.Dial(wsURL(ts, realtimePrefix+"/"+initA.RoomID))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.RecvInit(2 * time.Second); err != nil {
		t.Fatal(err)
	}

	digit := board.Digit(5)
	if err := a.Send(protocol.ApplyDiffsRequest{
		SyncID: 1,
		Diffs: []board.Diff{{
			Squares:   []int{0},
			Operation: board.SetNumber{Digit: &digit},
		}},
	}); err != nil {
		t.Fatal(err)
	}

	respA, err := recvNonCursor(a, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	partialA, ok := respA.(protocol.PartialUpdateResponse)
	if !ok {
		t.Fatalf("expected partialUpdate, got %T", respA)
	}
	if partialA.SyncID == nil || *partialA.SyncID != 1 {
		t.Fatalf("expected sender's syncId echoed as 1, got %+v", partialA.SyncID)
	}

	respB, err := recvNonCursor(b, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	partialB, ok := respB.(protocol.PartialUpdateResponse)
	if !ok {
		t.Fatalf("expected partialUpdate, got %T", respB)
	}
	if partialB.SyncID != nil {
		t.Fatalf("expected nil syncId for the non-sending session, got %v", *partialB.SyncID)
	}
}

func TestBinaryFrameGetsErrorButSessionStaysOpen(t *testing.T) {
	ts, _ := testServer(t)
	c, err := wsclient.Dial(wsURL(ts, realtimePrefix))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.RecvInit(2 * time.Second); err != nil {
		t.Fatal(err)
	}

	if err := c.SendBinary([]byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}

	resp, err := recvNonCursor(c, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := resp.(protocol.ErrorResponse); !ok {
		t.Fatalf("expected error response, got %T", resp)
	}

	// The socket must still be open: a normal request afterward gets a
	// normal response rather than the connection having been closed.
	digit := board.Digit(2)
	if err := c.Send(protocol.ApplyDiffsRequest{
		SyncID: 1,
		Diffs: []board.Diff{
			{Squares: []int{0}, Operation: board.SetNumber{Digit: &digit}},
		},
	}); err != nil {
		t.Fatal(err)
	}
	resp, err = recvNonCursor(c, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := resp.(protocol.PartialUpdateResponse); !ok {
		t.Fatalf("expected partialUpdate after the session recovered, got %T", resp)
	}
}

func TestRealtimeRoomFullGetsErrorThenCloses(t *testing.T) {
	ts, _ := testServer(t)

	first, err := wsclient.Dial(wsURL(ts, realtimePrefix))
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	init, err := first.RecvInit(2 * time.Second)
	if err != nil {
		t.Fatal(err)
	}

	roomURL := wsURL(ts, realtimePrefix+"/"+init.RoomID)

	// The room already holds one session from first; fill the
	// remaining slots up to testServer's MaxSessionsPerRoom (4).
	for i := 1; i < 4; i++ {
		c, err := wsclient.Dial(roomURL)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		if _, err := c.RecvInit(2 * time.Second); err != nil {
			t.Fatal(err)
		}
	}

	// The handshake still succeeds (the socket is upgraded), but the
	// room is full: the client gets an error frame over the open
	// socket, then the connection is closed, rather than a bare HTTP
	// error before any upgrade happens.
	extra, err := wsclient.Dial(roomURL)
	if err != nil {
		t.Fatal(err)
	}
	defer extra.Close()

	resp, err := extra.Recv(2 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := resp.(protocol.ErrorResponse); !ok {
		t.Fatalf("expected error response, got %T", resp)
	}

	if _, err := extra.Recv(2 * time.Second); err == nil {
		t.Fatal("expected the connection to be closed after the room-full error")
	}
}

func TestHealthzOK(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
