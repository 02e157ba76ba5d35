// Package cursor implements per-session cursor selections, the
// fixed-capacity map of every session's selection within a room, and
// the coalescing "watch" primitive used to fan updates out to peers.
package cursor

import (
	"encoding/json"
	"fmt"
)

// NumSquares mirrors board.NumSquares; duplicated here (rather than
// imported) to keep this package free of a dependency on internal/board
// for a single constant.
const NumSquares = 81

// Selection is a set of board square indices, represented as an
// 81-bit mask split across two uint64 limbs.
type Selection struct {
	low  uint64 // bits 0..63
	high uint64 // bits 64..80
}

// Contains reports whether idx is a member of the selection.
func (s Selection) Contains(idx int) bool {
	if idx < 64 {
		return s.low&(1<<uint(idx)) != 0
	}
	return s.high&(1<<uint(idx-64)) != 0
}

// Insert adds idx to the selection. It panics if idx is outside
// 0..NumSquares; callers at the protocol boundary must validate first.
func (s *Selection) Insert(idx int) {
	if idx < 0 || idx >= NumSquares {
		panic(fmt.Sprintf("cursor: index %d out of range", idx))
	}
	if idx < 64 {
		s.low |= 1 << uint(idx)
	} else {
		s.high |= 1 << uint(idx-64)
	}
}

// IsEmpty reports whether the selection has no members.
func (s Selection) IsEmpty() bool {
	return s.low == 0 && s.high == 0
}

// Indices returns the selection's members in strictly ascending order.
func (s Selection) Indices() []int {
	out := make([]int, 0, NumSquares)
	for i := 0; i < NumSquares; i++ {
		if s.Contains(i) {
			out = append(out, i)
		}
	}
	return out
}

// MarshalJSON externalizes the selection as an ascending array of
// square indices.
func (s Selection) MarshalJSON() ([]byte, error) {
	indices := s.Indices()
	if indices == nil {
		indices = []int{}
	}
	return json.Marshal(indices)
}

// UnmarshalJSON parses an array of square indices, rejecting any index
// outside 0..NumSquares.
func (s *Selection) UnmarshalJSON(data []byte) error {
	var indices []int
	if err := json.Unmarshal(data, &indices); err != nil {
		return err
	}
	var next Selection
	for _, idx := range indices {
		if idx < 0 || idx >= NumSquares {
			return fmt.Errorf("cursor: selection contains out-of-range index %d", idx)
		}
		next.Insert(idx)
	}
	*s = next
	return nil
}
