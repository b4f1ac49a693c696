package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/raterudder/eiademand/pkg/types"
)

// EncodeTable writes the table as CSV with the exact header for the layout and
// the table's schema.
func EncodeTable(w io.Writer, table types.Table, layout types.Layout) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(types.Header(layout, table.Schema)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	cols := table.Schema.Columns()
	for i, row := range table.Rows {
		var record []string
		key := types.FormatTimeKey(row.Time)
		switch layout {
		case types.LayoutCalendar:
			year, month, day, hour := types.ReportedCalendar(row.Time)
			record = make([]string, 0, 5+len(cols))
			record = append(record,
				key,
				strconv.Itoa(year),
				strconv.Itoa(int(month)),
				strconv.Itoa(day),
				strconv.Itoa(hour),
			)
		default:
			record = make([]string, 0, 2+len(cols))
			record = append(record, table.Entity, key)
		}
		for _, c := range cols {
			record = append(record, row.Get(c).String())
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeTable reads a CSV table written in either layout. The header must
// contain the time column and every value column of the requested schema;
// columns beyond the schema are ignored. Cells that are neither numeric nor a
// sentinel fail the whole table.
func DecodeTable(r io.Reader, name string, schema types.SchemaVariant) (types.Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return types.Table{}, &types.SchemaError{Table: name, Column: types.HeaderTime, Schema: schema}
		}
		return types.Table{}, fmt.Errorf("failed to read header of %s: %w", name, err)
	}
	positions := make(map[string]int, len(header))
	for i, h := range header {
		// the same header is accepted with or without a UTF-8 BOM
		if i == 0 && len(h) >= 3 && h[:3] == "\xef\xbb\xbf" {
			h = h[3:]
		}
		positions[h] = i
	}

	timePos, ok := positions[types.HeaderTime]
	if !ok {
		return types.Table{}, &types.SchemaError{Table: name, Column: types.HeaderTime, Schema: schema}
	}
	cols := schema.Columns()
	colPos := make([]int, len(cols))
	for i, c := range cols {
		p, ok := positions[string(c)]
		if !ok {
			return types.Table{}, &types.SchemaError{Table: name, Column: string(c), Schema: schema}
		}
		colPos[i] = p
	}

	table := types.Table{
		Entity: name,
		Schema: schema,
	}
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Table{}, fmt.Errorf("failed to read row %d of %s: %w", line, name, err)
		}
		ts, err := types.ParseTimeKey(record[timePos])
		if err != nil {
			return types.Table{}, &types.ParseError{Table: name, Row: line, Column: types.HeaderTime, Value: record[timePos]}
		}
		row := types.Row{
			Time:     ts,
			Demand:   types.Missing(),
			Forecast: types.Missing(),
			Cleaned:  types.Missing(),
		}
		for i, c := range cols {
			v, err := types.ParseValue(record[colPos[i]])
			if err != nil {
				return types.Table{}, &types.ParseError{Table: name, Row: line, Column: string(c), Value: record[colPos[i]]}
			}
			row.Set(c, v)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
