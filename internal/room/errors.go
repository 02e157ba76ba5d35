package room

import "fmt"

// RoomFullError is returned by NewSession when every cursor slot is
// occupied.
type RoomFullError struct {
	Max int
}

func (e *RoomFullError) Error() string {
	return fmt.Sprintf("this room is full. no more than %d connections are allowed to a single room.", e.Max)
}

// TooManyBoardDiffsError is returned by ApplyDiffs when a single
// request addresses more diffs than the configured group size.
type TooManyBoardDiffsError struct {
	Count, Max int
}

func (e *TooManyBoardDiffsError) Error() string {
	return fmt.Sprintf("got %d diffs in a request, but there is a maximum of %d diffs per request.", e.Count, e.Max)
}

// ReceivedBinaryMessageError is returned by the request receiver when
// the client sends a binary WebSocket frame instead of JSON text.
type ReceivedBinaryMessageError struct{}

func (e *ReceivedBinaryMessageError) Error() string {
	return "messages must be JSON-encoded text, not binary blobs."
}
