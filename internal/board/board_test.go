package board

import (
	"encoding/json"
	"errors"
	"testing"
)

func d(v uint8) *Digit {
	dd, err := NewDigit(v)
	if err != nil {
		panic(err)
	}
	return &dd
}

func TestDigitSetRoundTrip(t *testing.T) {
	var s DigitSet
	s.Insert(Digit(3))
	s.Insert(Digit(1))
	s.Insert(Digit(9))

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[1,3,9]" {
		t.Fatalf("expected ascending order, got %s", data)
	}

	var s2 DigitSet
	if err := json.Unmarshal(data, &s2); err != nil {
		t.Fatal(err)
	}
	if s2 != s {
		t.Fatalf("round trip mismatch: %v != %v", s2, s)
	}
}

func TestDigitSetRejectsOutOfRange(t *testing.T) {
	var s DigitSet
	if err := json.Unmarshal([]byte("[0]"), &s); err == nil {
		t.Fatal("expected error for digit 0")
	}
	if err := json.Unmarshal([]byte("[10]"), &s); err == nil {
		t.Fatal("expected error for digit 10")
	}
}

func TestApplyLockedSquareIsNoop(t *testing.T) {
	state := NewState()
	state.Squares[0].Locked = true
	state.Squares[0].Number = d(5)

	err := state.Apply(Diff{
		Squares:   []int{0},
		Operation: SetNumber{Digit: nil},
	})
	if err != nil {
		t.Fatal(err)
	}
	if state.Squares[0].Number == nil || *state.Squares[0].Number != 5 {
		t.Fatal("locked square should not have been mutated")
	}
}

func TestApplyTooManySquares(t *testing.T) {
	state := NewState()
	squares := make([]int, NumSquares+1)
	err := state.Apply(Diff{Squares: squares, Operation: ClearPencilMarks{Type: Centers}})
	var tooMany *TooManySquaresError
	if !errors.As(err, &tooMany) {
		t.Fatalf("expected TooManySquaresError, got %v", err)
	}
}

func TestApplyNonTransactional(t *testing.T) {
	state := NewState()
	err := state.Apply(Diff{
		Squares:   []int{0, 1, 200},
		Operation: SetNumber{Digit: d(7)},
	})
	var bad *InvalidSquareIndexError
	if !errors.As(err, &bad) {
		t.Fatalf("expected InvalidSquareIndexError, got %v", err)
	}
	if bad.Index != 200 {
		t.Fatalf("expected failing index 200, got %d", bad.Index)
	}
	// earlier squares remain mutated despite the later failure.
	if state.Squares[0].Number == nil || *state.Squares[0].Number != 7 {
		t.Fatal("square 0 should have been applied before the failure")
	}
	if state.Squares[1].Number == nil || *state.Squares[1].Number != 7 {
		t.Fatal("square 1 should have been applied before the failure")
	}
}

func TestDiffOperationRoundTrip(t *testing.T) {
	cases := []Diff{
		{Squares: []int{0}, Operation: SetNumber{Digit: d(5)}},
		{Squares: []int{1, 2}, Operation: AddPencilMark{Type: Centers, Digit: Digit(3)}},
		{Squares: []int{3}, Operation: RemovePencilMark{Type: Corners, Digit: Digit(9)}},
		{Squares: []int{4}, Operation: ClearPencilMarks{Type: Corners}},
	}
	for _, c := range cases {
		data, err := json.Marshal(c)
		if err != nil {
			t.Fatal(err)
		}
		var out Diff
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if out.Operation.fn() != c.Operation.fn() {
			t.Fatalf("fn mismatch: %s != %s", out.Operation.fn(), c.Operation.fn())
		}
	}
}

func TestBoardStateRequiresExactly81Squares(t *testing.T) {
	var s State
	if err := json.Unmarshal([]byte(`{"squares":[]}`), &s); err == nil {
		t.Fatal("expected error for wrong square count")
	}
}
