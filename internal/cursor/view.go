package cursor

import (
	"encoding/json"
	"strconv"
)

// View is a session-scoped snapshot of a Map: an object keyed by slot
// index (as a string), omitting the viewer's own slot and any slot
// whose selection is empty. It is computed once at creation so that
// MarshalJSON and UnmarshalJSON can share the same representation.
type View struct {
	entries map[string]Selection
}

// NewView computes the view of m as seen by the session occupying
// ownIdx.
func NewView(m *Map, ownIdx int) View {
	entries := make(map[string]Selection, len(m.slots))
	for i, s := range m.slots {
		if i == ownIdx || !s.occupied || s.selection.IsEmpty() {
			continue
		}
		entries[strconv.Itoa(i)] = s.selection
	}
	return View{entries: entries}
}

// Entries returns the view's slot-index-to-selection contents.
func (v View) Entries() map[string]Selection {
	return v.entries
}

// MarshalJSON encodes the view as `{"<slotIdx>": [indices...], ...}`.
func (v View) MarshalJSON() ([]byte, error) {
	if len(v.entries) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(v.entries)
}

// UnmarshalJSON parses a view back from its wire form.
func (v *View) UnmarshalJSON(data []byte) error {
	var entries map[string]Selection
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	v.entries = entries
	return nil
}
