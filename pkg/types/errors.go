package types

import (
	"fmt"
	"strconv"
)

// SchemaError is returned when a table lacks a column required by the
// selected schema variant.
type SchemaError struct {
	Table  string
	Column string
	Schema SchemaVariant
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %q is missing column %q required by schema %s", e.Table, e.Column, e.Schema)
}

// ParseError is returned when a cell is neither numeric nor a sentinel. Row is
// 1-based and counts data rows only; it is zero when not known.
type ParseError struct {
	Table  string
	Row    int
	Column string
	Value  string
}

func (e *ParseError) Error() string {
	msg := "invalid value " + strconv.Quote(e.Value)
	if e.Column != "" {
		msg += " in column " + strconv.Quote(e.Column)
	}
	if e.Row > 0 {
		msg += " at row " + strconv.Itoa(e.Row)
	}
	if e.Table != "" {
		msg += " of table " + strconv.Quote(e.Table)
	}
	return msg
}
