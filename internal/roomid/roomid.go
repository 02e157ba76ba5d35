// Package roomid implements the 128-bit room identifier and its
// base-54 text encoding.
package roomid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
)

// alphabet is the base-54 digit set: alphanumerics minus the visually
// ambiguous ilIoO01. It must stay sorted; Parse binary-searches it.
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz"

func init() {
	sorted := []byte(alphabet)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if string(sorted) != alphabet {
		panic("roomid: alphabet constant is not sorted")
	}
}

var base = big.NewInt(int64(len(alphabet)))

// maxValue is the exclusive upper bound of a 128-bit unsigned value.
var maxValue = new(big.Int).Lsh(big.NewInt(1), 128)

// ID is a 128-bit opaque room identifier, represented as a high/low
// pair of uint64s (Go has no native 128-bit integer) so that ID stays
// a comparable value usable as a map key.
type ID struct {
	Hi, Lo uint64
}

// New returns a uniformly random ID.
func New() (ID, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ID{}, fmt.Errorf("roomid: failed to read random bytes: %w", err)
	}
	var id ID
	for i := 0; i < 8; i++ {
		id.Hi = id.Hi<<8 | uint64(buf[i])
	}
	for i := 8; i < 16; i++ {
		id.Lo = id.Lo<<8 | uint64(buf[i])
	}
	return id, nil
}

// IsZero reports whether id is the zero ID.
func (id ID) IsZero() bool {
	return id.Hi == 0 && id.Lo == 0
}

func (id ID) big() *big.Int {
	n := new(big.Int).SetUint64(id.Hi)
	n.Lsh(n, 64)
	n.Or(n, new(big.Int).SetUint64(id.Lo))
	return n
}

func fromBig(n *big.Int) (ID, bool) {
	if n.Sign() < 0 || n.Cmp(maxValue) >= 0 {
		return ID{}, false
	}
	mask64 := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(n, mask64).Uint64()
	hi := new(big.Int).Rsh(n, 64).Uint64()
	return ID{Hi: hi, Lo: lo}, true
}

// String formats id as "r" followed by its base-54 digits, least
// significant digit first, with no padding. The zero ID formats as
// just "r".
func (id ID) String() string {
	if id.IsZero() {
		return "r"
	}
	n := id.big()
	zero := big.NewInt(0)
	mod := new(big.Int)
	digits := make([]byte, 0, 23)
	for n.Cmp(zero) > 0 {
		n.DivMod(n, base, mod)
		digits = append(digits, alphabet[mod.Int64()])
	}
	return "r" + string(digits)
}

// Bytes returns id's 16-byte little-endian representation, the form
// used as the primary key in the room store.
func (id ID) Bytes() [16]byte {
	var out [16]byte
	v := id.Lo
	for i := 0; i < 8; i++ {
		out[i] = byte(v)
		v >>= 8
	}
	v = id.Hi
	for i := 8; i < 16; i++ {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// FromBytes parses the 16-byte little-endian representation produced
// by Bytes.
func FromBytes(b []byte) (ID, error) {
	if len(b) != 16 {
		return ID{}, fmt.Errorf("roomid: expected 16 bytes, got %d", len(b))
	}
	var id ID
	for i := 7; i >= 0; i-- {
		id.Lo = id.Lo<<8 | uint64(b[i])
	}
	for i := 15; i >= 8; i-- {
		id.Hi = id.Hi<<8 | uint64(b[i])
	}
	return id, nil
}

// ErrInvalidFormat is returned by Parse when the string lacks the "r"
// prefix, contains a character outside the alphabet, or overflows the
// 128-bit accumulator.
type ErrInvalidFormat struct {
	Input string
	Cause string
}

func (e *ErrInvalidFormat) Error() string {
	return fmt.Sprintf("roomid: invalid room id %q: %s", e.Input, e.Cause)
}

// Parse parses the "r"-prefixed base-54 text form produced by String.
func Parse(s string) (ID, error) {
	if len(s) == 0 || s[0] != 'r' {
		return ID{}, &ErrInvalidFormat{Input: s, Cause: "missing 'r' prefix"}
	}
	digits := s[1:]
	if len(digits) == 0 {
		return ID{}, nil
	}
	result := big.NewInt(0)
	coef := big.NewInt(1)
	term := new(big.Int)
	for i := 0; i < len(digits); i++ {
		idx, ok := indexOf(digits[i])
		if !ok {
			return ID{}, &ErrInvalidFormat{Input: s, Cause: fmt.Sprintf("character %q is not in the alphabet", digits[i])}
		}
		term.Mul(coef, big.NewInt(int64(idx)))
		result.Add(result, term)
		if result.Cmp(maxValue) >= 0 {
			return ID{}, &ErrInvalidFormat{Input: s, Cause: "value overflows 128 bits"}
		}
		coef.Mul(coef, base)
	}
	id, ok := fromBig(result)
	if !ok {
		return ID{}, &ErrInvalidFormat{Input: s, Cause: "value overflows 128 bits"}
	}
	return id, nil
}

func indexOf(c byte) (int, bool) {
	// alphabet is short and sorted; binary search mirrors the source
	// implementation's approach.
	lo, hi := 0, len(alphabet)
	for lo < hi {
		mid := (lo + hi) / 2
		if alphabet[mid] == c {
			return mid, true
		} else if alphabet[mid] < c {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return 0, false
}
