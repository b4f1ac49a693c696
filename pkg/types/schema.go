package types

import (
	"fmt"
	"strings"
)

// Column identifies one of the value columns of a demand table.
type Column string

const (
	ColumnDemand   Column = "demand (MW)"
	ColumnForecast Column = "forecast demand (MW)"
	ColumnCleaned  Column = "cleaned demand (MW)"
)

// SchemaVariant selects the set of value columns a table carries.
type SchemaVariant int

const (
	// SchemaBasic carries demand only.
	SchemaBasic SchemaVariant = iota
	// SchemaWithForecast adds the day-ahead forecast demand.
	SchemaWithForecast
	// SchemaWithForecastAndCleaned adds the imputed "cleaned" demand.
	SchemaWithForecastAndCleaned
)

// Columns returns the value columns of the variant in header order.
func (s SchemaVariant) Columns() []Column {
	switch s {
	case SchemaWithForecast:
		return []Column{ColumnDemand, ColumnForecast}
	case SchemaWithForecastAndCleaned:
		return []Column{ColumnDemand, ColumnForecast, ColumnCleaned}
	default:
		return []Column{ColumnDemand}
	}
}

// Has returns true if the variant carries the column.
func (s SchemaVariant) Has(c Column) bool {
	for _, col := range s.Columns() {
		if col == c {
			return true
		}
	}
	return false
}

func (s SchemaVariant) String() string {
	switch s {
	case SchemaBasic:
		return "basic"
	case SchemaWithForecast:
		return "forecast"
	case SchemaWithForecastAndCleaned:
		return "cleaned"
	default:
		return fmt.Sprintf("SchemaVariant(%d)", int(s))
	}
}

// ParseSchemaVariant parses the names returned by SchemaVariant.String.
func ParseSchemaVariant(s string) (SchemaVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return SchemaBasic, nil
	case "forecast":
		return SchemaWithForecast, nil
	case "cleaned":
		return SchemaWithForecastAndCleaned, nil
	default:
		return 0, fmt.Errorf("unknown schema variant: %s", s)
	}
}

// Layout selects the leading, non-value columns of a stored table.
type Layout int

const (
	// LayoutSeries writes series_id,time before the value columns.
	LayoutSeries Layout = iota
	// LayoutCalendar writes time,year,month,day,hour before the value columns.
	LayoutCalendar
)

const (
	HeaderSeriesID = "series_id"
	HeaderTime     = "time"
	HeaderYear     = "year"
	HeaderMonth    = "month"
	HeaderDay      = "day"
	HeaderHour     = "hour"
)

func (l Layout) String() string {
	switch l {
	case LayoutCalendar:
		return "calendar"
	default:
		return "series"
	}
}

// ParseLayout parses the names returned by Layout.String.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "series":
		return LayoutSeries, nil
	case "calendar":
		return LayoutCalendar, nil
	default:
		return 0, fmt.Errorf("unknown table layout: %s", s)
	}
}

// Header returns the exact header row for a layout and schema. Downstream
// consumers depend on this order.
func Header(l Layout, s SchemaVariant) []string {
	var h []string
	switch l {
	case LayoutCalendar:
		h = []string{HeaderTime, HeaderYear, HeaderMonth, HeaderDay, HeaderHour}
	default:
		h = []string{HeaderSeriesID, HeaderTime}
	}
	for _, c := range s.Columns() {
		h = append(h, string(c))
	}
	return h
}
