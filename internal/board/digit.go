// Package board implements the 81-square Sudoku board: digits, pencil
// marks, diff application, and the wire representation of both.
package board

import (
	"encoding/json"
	"fmt"
)

// Digit is one of the values 1..9. The zero value is not a valid Digit;
// use NewDigit to construct one from an untrusted integer.
type Digit uint8

// NewDigit validates v and returns the corresponding Digit.
func NewDigit(v uint8) (Digit, error) {
	if v < 1 || v > 9 {
		return 0, fmt.Errorf("digit %d out of range 1..9", v)
	}
	return Digit(v), nil
}

func (d Digit) String() string {
	return fmt.Sprintf("%d", uint8(d))
}

// MarshalJSON serializes a Digit as a bare JSON integer.
func (d Digit) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint8(d))
}

// UnmarshalJSON parses a Digit from a bare JSON integer, rejecting
// anything outside 1..9.
func (d *Digit) UnmarshalJSON(data []byte) error {
	var v uint8
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewDigit(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DigitSet is a bitmask of digits 1..9, with bit index equal to the
// digit's own numeric value (bit 0 is always unused).
type DigitSet uint16

// Contains reports whether d is a member of the set.
func (s DigitSet) Contains(d Digit) bool {
	return s&(1<<uint16(d)) != 0
}

// Insert adds d to the set.
func (s *DigitSet) Insert(d Digit) {
	*s |= 1 << uint16(d)
}

// Remove removes d from the set, if present.
func (s *DigitSet) Remove(d Digit) {
	*s &^= 1 << uint16(d)
}

// Clear empties the set.
func (s *DigitSet) Clear() {
	*s = 0
}

// Digits returns the set's members in ascending numeric order.
func (s DigitSet) Digits() []Digit {
	out := make([]Digit, 0, 9)
	for v := uint8(1); v <= 9; v++ {
		if s.Contains(Digit(v)) {
			out = append(out, Digit(v))
		}
	}
	return out
}

// MarshalJSON externalizes the set as an ascending array of digits.
func (s DigitSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Digits())
}

// UnmarshalJSON parses an array of digits into the set, rejecting
// out-of-range values and duplicates are simply coalesced (a bitmask
// has no concept of duplicate membership).
func (s *DigitSet) UnmarshalJSON(data []byte) error {
	var digits []Digit
	if err := json.Unmarshal(data, &digits); err != nil {
		return err
	}
	var set DigitSet
	for _, d := range digits {
		if d < 1 || d > 9 {
			return fmt.Errorf("digit set contains out-of-range digit %d", d)
		}
		set.Insert(d)
	}
	*s = set
	return nil
}
