package board

import "encoding/json"

// NumSquares is the number of squares in a board: 9 rows of 9 columns.
const NumSquares = 81

// Diff is a set of target square indices paired with one mutation to
// apply to each.
type Diff struct {
	Squares   []int
	Operation DiffOperation
}

type wireDiff struct {
	Squares   []int           `json:"squares"`
	Operation json.RawMessage `json:"operation"`
}

// MarshalJSON encodes the diff as `{squares, operation: {fn, ...}}`.
func (d Diff) MarshalJSON() ([]byte, error) {
	opJSON, err := marshalOperation(d.Operation)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireDiff{Squares: d.Squares, Operation: opJSON})
}

// UnmarshalJSON decodes a diff, dispatching the operation's "fn" tag.
func (d *Diff) UnmarshalJSON(data []byte) error {
	var w wireDiff
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op, err := unmarshalOperation(w.Operation)
	if err != nil {
		return err
	}
	d.Squares = w.Squares
	d.Operation = op
	return nil
}

// Apply applies the diff's operation to each of its target squares in
// order. It fails with TooManySquaresError if the diff addresses more
// than NumSquares squares, or with InvalidSquareIndexError on the
// first out-of-range index it encounters. This is non-transactional:
// squares addressed before a bad index remain mutated.
func (s *State) Apply(d Diff) error {
	if len(d.Squares) > NumSquares {
		return &TooManySquaresError{Count: len(d.Squares), Max: NumSquares}
	}
	for _, idx := range d.Squares {
		if idx < 0 || idx >= NumSquares {
			return &InvalidSquareIndexError{Index: idx}
		}
		s.Squares[idx].apply(d.Operation)
	}
	return nil
}
