// Package global implements the room registry: the in-memory
// roomId -> *room.State map shared by every connection, and the
// single-flight load path that brings a room in from the store on
// first access.
package global

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/room"
	"github.com/kalgynirae/sudoku/internal/roomid"
)

// Loader reads one room's persisted board. ErrNotFound signals that no
// room exists under this id; any other error is a storage failure.
type Loader interface {
	LoadRoom(ctx context.Context, id roomid.ID) (board.State, error)
}

// ErrNotFound is returned by a Loader when no room is persisted under
// the requested id.
var ErrNotFound = fmt.Errorf("global: room not found")

// State is the process-wide room registry. Rooms are never evicted
// once loaded; the reference service trades memory for simplicity
// here.
type State struct {
	mu    sync.RWMutex
	rooms map[roomid.ID]*room.State

	loader Loader
	flight singleflight.Group

	limits room.Limits
	logger zerolog.Logger
}

// New returns an empty registry. loader may be nil, in which case
// GetRoom never attempts to load a room from storage and CreateRoom is
// the only way to populate the map.
func New(loader Loader, limits room.Limits, logger zerolog.Logger) *State {
	return &State{
		rooms:  make(map[roomid.ID]*room.State),
		loader: loader,
		limits: limits,
		logger: logger,
	}
}

// onNoSubscribers returns the callback wired onto every room's
// OnNoSubscribers hook: it logs the invariant violation (ApplyDiffs
// published to a room with no live subscribers) rather than failing
// anything.
func (s *State) onNoSubscribers(id roomid.ID) func() {
	return func() {
		s.logger.Error().Str("room_id", id.String()).Msg("applied diffs with no subscribers")
	}
}

// CreateRoom mints a fresh, empty room under a random id and registers
// it immediately.
func (s *State) CreateRoom() (*room.State, error) {
	id, err := roomid.New()
	if err != nil {
		return nil, fmt.Errorf("global: generate room id: %w", err)
	}
	r := room.New(id, s.limits)
	r.OnNoSubscribers = s.onNoSubscribers(id)

	s.mu.Lock()
	s.rooms[id] = r
	s.mu.Unlock()
	return r, nil
}

// GetRoom returns the room registered under id, loading it from
// storage on first access. Concurrent callers requesting the same
// unloaded id share one load: the singleflight.Group collapses
// duplicate in-flight loads into a single call to the loader, the Go
// stdlib-adjacent equivalent of a shared future keyed by room id.
func (s *State) GetRoom(ctx context.Context, id roomid.ID) (*room.State, error) {
	if r, ok := s.lookup(id); ok {
		return r, nil
	}
	if s.loader == nil {
		return nil, ErrNotFound
	}

	v, err, _ := s.flight.Do(id.String(), func() (interface{}, error) {
		// Re-check: another caller's load may have completed and been
		// inserted while this one waited to enter Do.
		if r, ok := s.lookup(id); ok {
			return r, nil
		}
		b, err := s.loader.LoadRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		r := room.Restore(id, b, s.limits)
		r.OnNoSubscribers = s.onNoSubscribers(id)
		s.mu.Lock()
		s.rooms[id] = r
		s.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*room.State), nil
}

func (s *State) lookup(id roomid.ID) (*room.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// RoomCount returns the number of rooms currently registered, used by
// internal/metrics.
func (s *State) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// DirtyRoom pairs a room id with its handle, returned by DirtyRooms for
// the store's writeback pass.
type DirtyRoom struct {
	ID    roomid.ID
	State *room.State
}

// DirtyRooms snapshots the room map, then concurrently (bounded by
// concurrency) checks each room's dirty flag, returning only those
// that are currently dirty. The snapshot is taken and released before
// any room lock is acquired, so a long writeback never holds the
// registry's read-write lock.
func (s *State) DirtyRooms(concurrency int) []DirtyRoom {
	s.mu.RLock()
	snapshot := make([]DirtyRoom, 0, len(s.rooms))
	for id, r := range s.rooms {
		snapshot = append(snapshot, DirtyRoom{ID: id, State: r})
	}
	s.mu.RUnlock()

	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	dirty := make([]DirtyRoom, 0, len(snapshot))

	for _, dr := range snapshot {
		wg.Add(1)
		sem <- struct{}{}
		go func(dr DirtyRoom) {
			defer wg.Done()
			defer func() { <-sem }()
			if dr.State.IsDirty() {
				mu.Lock()
				dirty = append(dirty, dr)
				mu.Unlock()
			}
		}(dr)
	}
	wg.Wait()
	return dirty
}
