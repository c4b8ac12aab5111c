package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Amount is a token amount in base units (wei for 18-decimal tokens).
// JSON encodes it as a decimal string so values above 2^53 survive clients
// that parse numbers as doubles; decoding accepts strings and integers.
type Amount struct {
	n *big.Int
}

// NewAmount returns an Amount holding v.
func NewAmount(v int64) Amount {
	return Amount{n: big.NewInt(v)}
}

// AmountFromBig returns an Amount holding a copy of v. A nil v yields an
// unset Amount.
func AmountFromBig(v *big.Int) Amount {
	if v == nil {
		return Amount{}
	}
	return Amount{n: new(big.Int).Set(v)}
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("parse amount: empty string")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("parse amount: invalid integer %q", s)
	}
	return Amount{n: n}, nil
}

// MustParseAmount is like ParseAmount but panics on error.
// Use only in tests or with literal inputs.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsSet reports whether the amount carries a value.
func (a Amount) IsSet() bool {
	return a.n != nil
}

// Big returns a copy of the amount as a big.Int. Unset amounts return zero.
func (a Amount) Big() *big.Int {
	if a.n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.n)
}

// Cmp compares a and b, treating unset as zero.
func (a Amount) Cmp(b Amount) int {
	return a.Big().Cmp(b.Big())
}

// String returns the base-10 representation; unset amounts print as "0".
func (a Amount) String() string {
	if a.n == nil {
		return "0"
	}
	return a.n.String()
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.n == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.n.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = Amount{}
		return nil
	}
	s = strings.Trim(s, `"`)
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
