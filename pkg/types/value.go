package types

import (
	"math"
	"strconv"
	"strings"
)

const (
	// SentinelMissing marks an hour the source never reported.
	SentinelMissing = "MISSING"
	// SentinelEmpty marks an hour the source reported as null.
	SentinelEmpty = "EMPTY"
)

// ValueKind distinguishes a numeric cell from the two sentinels.
type ValueKind uint8

const (
	ValueNumber ValueKind = iota
	ValueMissing
	ValueEmpty
)

// Value is a single demand cell in megawatts or one of the sentinels.
type Value struct {
	Kind ValueKind
	MW   float64
}

// Number returns a numeric Value.
func Number(mw float64) Value {
	return Value{Kind: ValueNumber, MW: mw}
}

// Missing returns the MISSING sentinel.
func Missing() Value {
	return Value{Kind: ValueMissing}
}

// Empty returns the EMPTY sentinel.
func Empty() Value {
	return Value{Kind: ValueEmpty}
}

// IsSentinel returns true for MISSING and EMPTY.
func (v Value) IsSentinel() bool {
	return v.Kind != ValueNumber
}

// Truncated returns the value truncated toward zero to whole megawatts. It
// must only be called on numeric values.
func (v Value) Truncated() int64 {
	return int64(math.Trunc(v.MW))
}

// String returns the text stored in a table cell.
func (v Value) String() string {
	switch v.Kind {
	case ValueMissing:
		return SentinelMissing
	case ValueEmpty:
		return SentinelEmpty
	default:
		return strconv.FormatFloat(v.MW, 'f', -1, 64)
	}
}

// ParseValue parses a table cell. Surrounding whitespace is ignored.
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch s {
	case SentinelMissing:
		return Missing(), nil
	case SentinelEmpty:
		return Empty(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, &ParseError{Value: s}
	}
	return Number(f), nil
}
