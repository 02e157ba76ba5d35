package board

import (
	"encoding/json"
	"fmt"
)

// PencilType distinguishes the two independent pencil-mark stores a
// square carries.
type PencilType uint8

const (
	Centers PencilType = iota
	Corners
)

func (t PencilType) String() string {
	switch t {
	case Centers:
		return "centers"
	case Corners:
		return "corners"
	default:
		return fmt.Sprintf("PencilType(%d)", uint8(t))
	}
}

func (t PencilType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *PencilType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "centers":
		*t = Centers
	case "corners":
		*t = Corners
	default:
		return fmt.Errorf("unknown pencil mark type %q", s)
	}
	return nil
}

// Square is the state of one of a board's 81 cells.
type Square struct {
	Number  *Digit     `json:"number"`
	Corners DigitSet   `json:"corners"`
	Centers DigitSet   `json:"centers"`
	Locked  bool       `json:"locked"`
}

// marks returns a pointer to the mark store addressed by t, so callers
// can mutate it in place.
func (sq *Square) marks(t PencilType) *DigitSet {
	if t == Corners {
		return &sq.Corners
	}
	return &sq.Centers
}

// apply applies op to the square. Locked squares silently ignore every
// operation; this is not an error.
func (sq *Square) apply(op DiffOperation) {
	if sq.Locked {
		return
	}
	op.applyTo(sq)
}
