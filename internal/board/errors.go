package board

import "fmt"

// InvalidSquareIndexError is returned when a diff addresses a square
// index outside 0..81.
type InvalidSquareIndexError struct {
	Index int
}

func (e *InvalidSquareIndexError) Error() string {
	return fmt.Sprintf("got a diff containing an index of %d, which is out of bounds.", e.Index)
}

// TooManySquaresError is returned when a single diff addresses more
// squares than a board has.
type TooManySquaresError struct {
	Count, Max int
}

func (e *TooManySquaresError) Error() string {
	return fmt.Sprintf("received a diff containing %d squares, but a diff can't contain more than %d squares.", e.Count, e.Max)
}
