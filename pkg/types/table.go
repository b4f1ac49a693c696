package types

import (
	"fmt"
	"time"
)

// TimeKeyFormat is the canonical hourly timestamp key, e.g. 20150701T05Z.
const TimeKeyFormat = "20060102T15Z"

// FormatTimeKey formats t as an hourly key in UTC.
func FormatTimeKey(t time.Time) string {
	return t.UTC().Format(TimeKeyFormat)
}

// ParseTimeKey parses an hourly key. The result is in UTC.
func ParseTimeKey(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeKeyFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time key %q: %w", s, err)
	}
	return t, nil
}

// ReportedCalendar returns the calendar fields used by the hour-ending
// convention: the value at T covers the hour starting at T-1h, reported as that
// starting hour plus one, so midnight belongs to hour 24 of the previous day.
func ReportedCalendar(t time.Time) (year int, month time.Month, day, hour int) {
	start := t.UTC().Add(-time.Hour)
	year, month, day = start.Date()
	return year, month, day, start.Hour() + 1
}

// Row is one hour of one entity.
type Row struct {
	Time     time.Time
	Demand   Value
	Forecast Value
	Cleaned  Value
}

// Get returns the cell for the column.
func (r *Row) Get(c Column) Value {
	switch c {
	case ColumnForecast:
		return r.Forecast
	case ColumnCleaned:
		return r.Cleaned
	default:
		return r.Demand
	}
}

// Set replaces the cell for the column.
func (r *Row) Set(c Column, v Value) {
	switch c {
	case ColumnForecast:
		r.Forecast = v
	case ColumnCleaned:
		r.Cleaned = v
	default:
		r.Demand = v
	}
}

// Table is a dense hourly series for one entity, which is a balancing
// authority, a region, or an interconnection.
type Table struct {
	Entity string
	Schema SchemaVariant
	Rows   []Row
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	rows := make([]Row, len(t.Rows))
	copy(rows, t.Rows)
	return Table{
		Entity: t.Entity,
		Schema: t.Schema,
		Rows:   rows,
	}
}

// Times returns the timestamp of every row in order.
func (t Table) Times() []time.Time {
	ts := make([]time.Time, len(t.Rows))
	for i, r := range t.Rows {
		ts[i] = r.Time
	}
	return ts
}
