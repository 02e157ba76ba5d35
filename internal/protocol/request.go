// Package protocol implements the realtime wire protocol: the JSON
// tagged unions clients send and receive over the room WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/cursor"
)

// Request is one variant of a client-to-server message.
type Request interface {
	requestType() string
}

// SetBoardStateRequest overwrites the room's board wholesale. It does
// not broadcast a diff; other sessions learn of the change only via a
// subsequent diff or a lag-recovery full update.
type SetBoardStateRequest struct {
	BoardState board.State
}

func (SetBoardStateRequest) requestType() string { return "setBoardState" }

// ApplyDiffsRequest applies a batch of diffs in order and records
// SyncID as the latest sync id received from the sender. The batch is
// not atomic: diffs applied before a failing one stay applied.
type ApplyDiffsRequest struct {
	SyncID uint64
	Diffs  []board.Diff
}

func (ApplyDiffsRequest) requestType() string { return "applyDiffs" }

// UpdateCursorRequest replaces the sender's cursor selection.
type UpdateCursorRequest struct {
	Selection cursor.Selection
}

func (UpdateCursorRequest) requestType() string { return "updateCursor" }

type wireRequest struct {
	Type       string          `json:"type"`
	BoardState *board.State    `json:"boardState,omitempty"`
	SyncID     *uint64         `json:"syncId,omitempty"`
	Diffs      []board.Diff    `json:"diffs,omitempty"`
	Selection  *cursor.Selection `json:"selection,omitempty"`
}

// DecodeRequest parses one JSON request frame. Unknown "type" tags and
// malformed variants are both reported as errors.
func DecodeRequest(data []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case "setBoardState":
		if w.BoardState == nil {
			return nil, fmt.Errorf("protocol: setBoardState requires boardState")
		}
		return SetBoardStateRequest{BoardState: *w.BoardState}, nil
	case "applyDiffs":
		if w.SyncID == nil {
			return nil, fmt.Errorf("protocol: applyDiffs requires syncId")
		}
		return ApplyDiffsRequest{SyncID: *w.SyncID, Diffs: w.Diffs}, nil
	case "updateCursor":
		if w.Selection == nil {
			return nil, fmt.Errorf("protocol: updateCursor requires selection")
		}
		return UpdateCursorRequest{Selection: *w.Selection}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown request type %q", w.Type)
	}
}

// EncodeRequest is used only by the test client (internal/wsclient);
// real clients are the ones producing these frames in production.
func EncodeRequest(r Request) ([]byte, error) {
	switch v := r.(type) {
	case SetBoardStateRequest:
		return json.Marshal(wireRequest{Type: v.requestType(), BoardState: &v.BoardState})
	case ApplyDiffsRequest:
		return json.Marshal(wireRequest{Type: v.requestType(), SyncID: &v.SyncID, Diffs: v.Diffs})
	case UpdateCursorRequest:
		return json.Marshal(wireRequest{Type: v.requestType(), Selection: &v.Selection})
	default:
		return nil, fmt.Errorf("protocol: unknown request type %T", r)
	}
}
