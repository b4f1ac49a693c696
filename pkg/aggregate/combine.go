package aggregate

import "github.com/raterudder/eiademand/pkg/types"

// Policy selects how a cell is resolved when both inputs are sentinels.
type Policy int

const (
	// PolicyZero resolves two sentinels to 0. This is the canonical policy.
	PolicyZero Policy = iota
	// PolicyPreserveSentinel keeps the first input's sentinel when both are
	// sentinels, and the seed of a sum is not zero-filled, so a cell that is
	// a sentinel in every input stays that sentinel. Older aggregation runs
	// behaved this way; it only exists to reproduce them. Combine is not
	// commutative under this policy: Combine(MISSING, EMPTY) is MISSING while
	// Combine(EMPTY, MISSING) is EMPTY.
	PolicyPreserveSentinel
)

// Combine adds two cells using the canonical policy. Numbers are truncated to
// whole megawatts first and negative numbers are treated as unusable:
//
//   - both sentinel, or both negative: 0
//   - one unusable and the other a non-negative number: that number
//   - both non-negative numbers: their sum
func Combine(a, b types.Value) types.Value {
	return PolicyZero.Combine(a, b)
}

// Combine adds two cells under the policy.
func (p Policy) Combine(a, b types.Value) types.Value {
	if a.IsSentinel() && b.IsSentinel() {
		if p == PolicyPreserveSentinel {
			return a
		}
		return types.Number(0)
	}

	av, aok := usable(a)
	bv, bok := usable(b)
	switch {
	case aok && bok:
		return types.Number(float64(av + bv))
	case aok:
		return types.Number(float64(av))
	case bok:
		return types.Number(float64(bv))
	default:
		return types.Number(0)
	}
}

// usable returns the truncated megawatts of a non-negative number.
func usable(v types.Value) (int64, bool) {
	if v.IsSentinel() {
		return 0, false
	}
	mw := v.Truncated()
	if mw < 0 {
		return 0, false
	}
	return mw, true
}

// ZeroSentinels replaces every sentinel cell in the schema's columns with 0.
// The table is modified in place.
func ZeroSentinels(table *types.Table) {
	cols := table.Schema.Columns()
	for i := range table.Rows {
		row := &table.Rows[i]
		for _, c := range cols {
			if row.Get(c).IsSentinel() {
				row.Set(c, types.Number(0))
			}
		}
	}
}
