package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/cursor"
)

// Response is one variant of a server-to-client message.
type Response interface {
	responseType() string
}

// InitResponse is the first frame sent on a new connection.
type InitResponse struct {
	RoomID     string
	BoardState board.State
}

func (InitResponse) responseType() string { return "init" }

// PartialUpdateResponse carries the diffs from one applyDiffs call.
// SyncID is the sync id of the latest of this session's own edits that
// has been echoed back on the room's broadcast, or nil if none has.
type PartialUpdateResponse struct {
	SyncID *uint64
	Diffs  []board.Diff
}

func (PartialUpdateResponse) responseType() string { return "partialUpdate" }

// FullUpdateResponse is sent when a session's diff subscription has
// lagged past the broadcast channel's retention window.
type FullUpdateResponse struct {
	SyncID     *uint64
	BoardState board.State
}

func (FullUpdateResponse) responseType() string { return "fullUpdate" }

// UpdateCursorResponse carries a session-scoped view of the room's
// cursor map.
type UpdateCursorResponse struct {
	Map cursor.View
}

func (UpdateCursorResponse) responseType() string { return "updateCursor" }

// ErrorResponse reports a client-facing error. The socket may or may
// not remain open afterward, depending on the error's severity.
type ErrorResponse struct {
	Message string
}

func (ErrorResponse) responseType() string { return "error" }

type wireResponse struct {
	Type       string         `json:"type"`
	RoomID     *string        `json:"roomId,omitempty"`
	BoardState *board.State   `json:"boardState,omitempty"`
	SyncID     *uint64        `json:"syncId"`
	Diffs      []board.Diff   `json:"diffs,omitempty"`
	Map        *cursor.View   `json:"map,omitempty"`
	Message    *string        `json:"message,omitempty"`
}

// EncodeResponse serializes one response frame.
func EncodeResponse(r Response) ([]byte, error) {
	switch v := r.(type) {
	case InitResponse:
		return json.Marshal(wireResponse{Type: v.responseType(), RoomID: &v.RoomID, BoardState: &v.BoardState})
	case PartialUpdateResponse:
		return json.Marshal(wireResponse{Type: v.responseType(), SyncID: v.SyncID, Diffs: nonNilDiffs(v.Diffs)})
	case FullUpdateResponse:
		return json.Marshal(wireResponse{Type: v.responseType(), SyncID: v.SyncID, BoardState: &v.BoardState})
	case UpdateCursorResponse:
		return json.Marshal(wireResponse{Type: v.responseType(), Map: &v.Map})
	case ErrorResponse:
		return json.Marshal(wireResponse{Type: v.responseType(), Message: &v.Message})
	default:
		return nil, fmt.Errorf("protocol: unknown response type %T", r)
	}
}

func nonNilDiffs(d []board.Diff) []board.Diff {
	if d == nil {
		return []board.Diff{}
	}
	return d
}

// DecodeResponse is used only by the test client (internal/wsclient)
// to parse server frames for assertions.
func DecodeResponse(data []byte) (Response, error) {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case "init":
		if w.RoomID == nil || w.BoardState == nil {
			return nil, fmt.Errorf("protocol: init requires roomId and boardState")
		}
		return InitResponse{RoomID: *w.RoomID, BoardState: *w.BoardState}, nil
	case "partialUpdate":
		return PartialUpdateResponse{SyncID: w.SyncID, Diffs: w.Diffs}, nil
	case "fullUpdate":
		if w.BoardState == nil {
			return nil, fmt.Errorf("protocol: fullUpdate requires boardState")
		}
		return FullUpdateResponse{SyncID: w.SyncID, BoardState: *w.BoardState}, nil
	case "updateCursor":
		if w.Map == nil {
			return nil, fmt.Errorf("protocol: updateCursor requires map")
		}
		return UpdateCursorResponse{Map: *w.Map}, nil
	case "error":
		if w.Message == nil {
			return nil, fmt.Errorf("protocol: error requires message")
		}
		return ErrorResponse{Message: *w.Message}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown response type %q", w.Type)
	}
}
