package cursor

import "errors"

// ErrClosed is returned by WatchReceiver.Recv once the underlying
// Watch has been closed and its latest value already observed.
var ErrClosed = errors.New("cursor: watch closed")

// ErrFull is returned by Map.NewSession when every slot is occupied.
var ErrFull = errors.New("cursor: map is full")

// ErrInvalidIndex is returned when an operation addresses a slot that
// is stale or belongs to another map.
type ErrInvalidIndex struct {
	Index int
}

func (e *ErrInvalidIndex) Error() string {
	return "cursor: slot index is invalid for this map"
}
