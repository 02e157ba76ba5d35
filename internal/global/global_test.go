package global

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/room"
	"github.com/kalgynirae/sudoku/internal/roomid"
)

func testLimits() room.Limits {
	return room.Limits{MaxSessionsPerRoom: 8, MaxBoardDiffGroupSize: 8, MaxBoardDiffGroupQueue: 32}
}

type stubLoader struct {
	calls int32
	delay time.Duration
	board board.State
	err   error
}

func (l *stubLoader) LoadRoom(ctx context.Context, id roomid.ID) (board.State, error) {
	atomic.AddInt32(&l.calls, 1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.err != nil {
		return board.State{}, l.err
	}
	return l.board, nil
}

func TestCreateRoomThenGetRoomReturnsSameHandle(t *testing.T) {
	s := New(nil, testLimits(), zerolog.Nop())
	r, err := s.CreateRoom()
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetRoom(context.Background(), r.RoomID)
	if err != nil {
		t.Fatal(err)
	}
	if got != r {
		t.Fatal("expected GetRoom to return the same *room.State")
	}
}

func TestGetRoomUnknownWithoutLoaderReturnsNotFound(t *testing.T) {
	s := New(nil, testLimits(), zerolog.Nop())
	id, _ := roomid.New()
	_, err := s.GetRoom(context.Background(), id)
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRoomLoadsFromStoreOnce(t *testing.T) {
	loader := &stubLoader{delay: 50 * time.Millisecond, board: board.NewState()}
	s := New(loader, testLimits(), zerolog.Nop())
	id, _ := roomid.New()

	var wg sync.WaitGroup
	results := make([]*room.State, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.GetRoom(context.Background(), id)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&loader.calls) != 1 {
		t.Fatalf("expected exactly 1 load, got %d", loader.calls)
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatal("expected all concurrent callers to observe the same room handle")
		}
	}
}

func TestDirtyRoomsOnlyReturnsDirty(t *testing.T) {
	s := New(nil, testLimits(), zerolog.Nop())
	clean, err := s.CreateRoom()
	if err != nil {
		t.Fatal(err)
	}
	dirty, err := s.CreateRoom()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dirty.NewSession(); err != nil {
		t.Fatal(err)
	}
	if err := dirty.ApplyDiffs(1, 1, []board.Diff{{Squares: []int{0}, Operation: board.ClearPencilMarks{}}}); err != nil {
		t.Fatal(err)
	}

	got := s.DirtyRooms(5)
	if len(got) != 1 || got[0].ID != dirty.RoomID {
		t.Fatalf("expected exactly room %v dirty, got %+v", dirty.RoomID, got)
	}
	_ = clean
}

func TestRoomCount(t *testing.T) {
	s := New(nil, testLimits(), zerolog.Nop())
	if s.RoomCount() != 0 {
		t.Fatal("expected empty registry")
	}
	if _, err := s.CreateRoom(); err != nil {
		t.Fatal(err)
	}
	if s.RoomCount() != 1 {
		t.Fatalf("expected 1 room, got %d", s.RoomCount())
	}
}
