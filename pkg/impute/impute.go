// Package impute fills gaps in demand tables with the mean of the column.
package impute

import (
	"context"
	"log/slog"

	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/types"
)

// Report describes the imputation of one column.
type Report struct {
	Entity string       `json:"entity"`
	Column types.Column `json:"column"`
	// Absent is the number of cells that were a sentinel or negative.
	Absent int `json:"absent"`
	Total  int `json:"total"`
	// Percent is Absent as a percentage of Total, 0 for an empty table.
	Percent float64 `json:"percent"`
	// Mean is the value absent cells were replaced with.
	Mean float64 `json:"mean"`
}

// Column returns a copy of table with every absent cell of column replaced by
// the mean of the present cells. A cell is absent when it is a sentinel or a
// negative number. When no cell is present, absent cells become 0.
func Column(table types.Table, column types.Column) (types.Table, Report) {
	out := table.Clone()
	r := Report{
		Entity: table.Entity,
		Column: column,
		Total:  len(table.Rows),
	}

	var sum float64
	var present int
	for i := range out.Rows {
		v := out.Rows[i].Get(column)
		if absent(v) {
			r.Absent++
			continue
		}
		sum += v.MW
		present++
	}
	if present > 0 {
		r.Mean = sum / float64(present)
	}
	if r.Total > 0 {
		r.Percent = 100 * float64(r.Absent) / float64(r.Total)
	}

	if r.Absent == 0 {
		return out, r
	}
	for i := range out.Rows {
		if absent(out.Rows[i].Get(column)) {
			out.Rows[i].Set(column, types.Number(r.Mean))
		}
	}
	return out, r
}

func absent(v types.Value) bool {
	return v.IsSentinel() || v.MW < 0
}

// Clean copies the demand column into the cleaned column and imputes it. The
// raw demand column is kept as is. The table must carry a forecast column and
// the result has the cleaned schema.
func Clean(ctx context.Context, table types.Table) (types.Table, Report, error) {
	if !table.Schema.Has(types.ColumnForecast) {
		return types.Table{}, Report{}, &types.SchemaError{
			Table:  table.Entity,
			Column: string(types.ColumnForecast),
			Schema: table.Schema,
		}
	}

	in := table.Clone()
	in.Schema = types.SchemaWithForecastAndCleaned
	for i := range in.Rows {
		in.Rows[i].Cleaned = in.Rows[i].Demand
	}
	out, r := Column(in, types.ColumnCleaned)

	log.Ctx(ctx).DebugContext(
		ctx,
		"imputed demand",
		slog.String("entity", r.Entity),
		slog.Int("absent", r.Absent),
		slog.Int("total", r.Total),
		slog.Float64("mean", r.Mean),
	)
	return out, r, nil
}
