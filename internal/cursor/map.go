package cursor

// slot is one entry of a Map: either empty, or a session id paired
// with that session's current selection.
type slot struct {
	sessionID uint64
	selection Selection
	occupied  bool
}

// Map is a fixed-capacity table of (sessionId, Selection) slots. The
// slot index assigned at session creation is stable for the session's
// lifetime; Remove clears the slot without shifting others, so
// iteration order is deterministic and equality compares cleanly.
// It is cheap to copy by value (Clone), which matters because it is
// republished on every cursor update.
type Map struct {
	slots []slot
}

// NewMap returns an empty map with room for capacity sessions.
func NewMap(capacity int) *Map {
	return &Map{slots: make([]slot, capacity)}
}

// Clone returns an independent copy whose mutation does not affect m.
func (m *Map) Clone() *Map {
	next := &Map{slots: make([]slot, len(m.slots))}
	copy(next.slots, m.slots)
	return next
}

// Equal compares the full fixed array, including empty slots, so two
// maps are equal only with identical occupancy.
func (m *Map) Equal(other *Map) bool {
	if len(m.slots) != len(other.slots) {
		return false
	}
	for i := range m.slots {
		if m.slots[i] != other.slots[i] {
			return false
		}
	}
	return true
}

// NewSession allocates the first free slot, in index order, for
// sessionID. It fails with ErrFull if every slot is occupied.
func (m *Map) NewSession(sessionID uint64) (int, error) {
	for i := range m.slots {
		if !m.slots[i].occupied {
			m.slots[i] = slot{sessionID: sessionID, occupied: true}
			return i, nil
		}
	}
	return 0, ErrFull
}

// Update overwrites the selection stored at idx.
func (m *Map) Update(idx int, selection Selection) error {
	if idx < 0 || idx >= len(m.slots) || !m.slots[idx].occupied {
		return &ErrInvalidIndex{Index: idx}
	}
	m.slots[idx].selection = selection
	return nil
}

// Remove clears the slot at idx.
func (m *Map) Remove(idx int) error {
	if idx < 0 || idx >= len(m.slots) || !m.slots[idx].occupied {
		return &ErrInvalidIndex{Index: idx}
	}
	m.slots[idx] = slot{}
	return nil
}
