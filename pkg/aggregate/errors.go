package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/raterudder/eiademand/pkg/types"
)

var (
	// ErrNoUsableEntities is returned when a sum has no input table, either
	// because none was given or every entity was skipped as unusable.
	ErrNoUsableEntities = errors.New("no usable entities to aggregate")
)

// AlignmentError is returned when two tables being summed disagree on the
// timestamp at a row, or have different lengths. Row is the 0-based index of
// the first offending data row. A zero Got means Entity has no row at that
// index and a zero Want means Seed has none.
type AlignmentError struct {
	Target string
	Seed   string
	Entity string
	Row    int
	Want   time.Time
	Got    time.Time
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf(
		"misaligned tables for %s: %s and %s disagree at row %d (%s vs %s)",
		e.Target, e.Seed, e.Entity, e.Row, timeKey(e.Want), timeKey(e.Got),
	)
}

func timeKey(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return types.FormatTimeKey(t)
}

// TargetError wraps the failure of one target in AggregateAll.
type TargetError struct {
	Target string
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("target %s: %v", e.Target, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}
