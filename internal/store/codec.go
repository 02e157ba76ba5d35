package store

import (
	"fmt"

	"github.com/kalgynirae/sudoku/internal/board"
)

// bytesPerSquare is the fixed per-square record size: number, a u16
// corners mask, a u16 centers mask, and a locked flag.
const bytesPerSquare = 6

// BlobSize is the fixed size of one room's serialized board.
const BlobSize = board.NumSquares * bytesPerSquare

// EncodeBoard serializes b into its fixed-size on-disk form.
func EncodeBoard(b board.State) []byte {
	out := make([]byte, 0, BlobSize)
	for _, sq := range b.Squares {
		var number byte
		if sq.Number != nil {
			number = byte(*sq.Number)
		}
		var locked byte
		if sq.Locked {
			locked = 1
		}
		out = append(out,
			number,
			byte(sq.Corners), byte(sq.Corners>>8),
			byte(sq.Centers), byte(sq.Centers>>8),
			locked,
		)
	}
	return out
}

// DecodeBoard parses the fixed-size on-disk form produced by
// EncodeBoard, rejecting any value outside the documented ranges.
func DecodeBoard(data []byte) (board.State, error) {
	if len(data) != BlobSize {
		return board.State{}, fmt.Errorf("store: expected %d byte board blob, got %d", BlobSize, len(data))
	}
	var b board.State
	for i := 0; i < board.NumSquares; i++ {
		rec := data[i*bytesPerSquare : (i+1)*bytesPerSquare]
		number := rec[0]
		if number > 9 {
			return board.State{}, fmt.Errorf("store: square %d has invalid number byte %d", i, number)
		}
		locked := rec[5]
		if locked > 1 {
			return board.State{}, fmt.Errorf("store: square %d has invalid locked byte %d", i, locked)
		}
		sq := board.Square{
			Corners: board.DigitSet(rec[1]) | board.DigitSet(rec[2])<<8,
			Centers: board.DigitSet(rec[3]) | board.DigitSet(rec[4])<<8,
			Locked:  locked == 1,
		}
		if number != 0 {
			digit, err := board.NewDigit(number)
			if err != nil {
				return board.State{}, fmt.Errorf("store: square %d: %w", i, err)
			}
			sq.Number = &digit
		}
		b.Squares[i] = sq
	}
	return b, nil
}
