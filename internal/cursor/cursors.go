package cursor

import (
	"context"
	"sync"
)

// Cursors wraps a Watch[*Map] to share one room's cursor selections
// across every connected session. Writers (NewSession, Update, Remove)
// are serialized by mu so that "read current value, mutate a clone,
// publish" is atomic with respect to other writers; readers consume
// the Watch directly and never block a writer.
type Cursors struct {
	mu    sync.Mutex
	watch *Watch[*Map]
}

// NewCursors returns an empty cursor table with room for capacity
// sessions.
func NewCursors(capacity int) *Cursors {
	return &Cursors{watch: NewWatch[*Map](NewMap(capacity))}
}

func (c *Cursors) apply(fn func(m *Map) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := c.watch.Get().Clone()
	if err := fn(clone); err != nil {
		return err
	}
	c.watch.Set(clone)
	return nil
}

// SessionCursor bundles the sender and receiver a session uses to
// update its own selection and observe its peers'.
type SessionCursor struct {
	Tx *SessionCursorSender
	Rx *SessionCursorReceiver
}

// NewSession allocates a slot for sessionID and returns a bound
// sender/receiver pair. It fails with ErrFull if the table has no free
// slot.
func (c *Cursors) NewSession(sessionID uint64) (*SessionCursor, error) {
	var idx int
	err := c.apply(func(m *Map) error {
		allocated, err := m.NewSession(sessionID)
		if err != nil {
			return err
		}
		idx = allocated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &SessionCursor{
		Tx: &SessionCursorSender{cursors: c, idx: idx},
		Rx: &SessionCursorReceiver{idx: idx, recv: c.watch.NewReceiver()},
	}, nil
}

// SessionCursorSender updates (and, on Close, releases) one session's
// slot.
type SessionCursorSender struct {
	cursors *Cursors
	idx     int
}

// Update writes selection into the sender's slot and publishes it.
func (s *SessionCursorSender) Update(selection Selection) error {
	return s.cursors.apply(func(m *Map) error {
		return m.Update(s.idx, selection)
	})
}

// Close releases the sender's slot, the equivalent of the source's
// drop-triggered cleanup (Go has no destructors, so callers must call
// this explicitly when a session ends).
func (s *SessionCursorSender) Close() error {
	return s.cursors.apply(func(m *Map) error {
		return m.Remove(s.idx)
	})
}

// SessionCursorReceiver observes the shared cursor map from one
// session's point of view.
type SessionCursorReceiver struct {
	idx  int
	recv *WatchReceiver[*Map]
}

// Recv blocks until somebody updates the map (the first call returns
// immediately with the current value), then returns a View scoped to
// the receiver's own slot.
func (r *SessionCursorReceiver) Recv(ctx context.Context) (View, error) {
	m, err := r.recv.Recv(ctx)
	if err != nil {
		return View{}, err
	}
	return NewView(m, r.idx), nil
}
