// Package series turns sparse hourly observations into dense tables.
package series

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/types"
)

// Observation is one reported hour. A nil Value means the source explicitly
// reported null for the hour.
type Observation struct {
	Time  time.Time
	Value *float64
}

// Float returns a pointer to f, for building observations.
func Float(f float64) *float64 {
	return &f
}

// HourlyRange returns every hour in [start, end). Both ends are truncated to
// the hour in UTC.
func HourlyRange(start, end time.Time) ([]time.Time, error) {
	start = start.UTC().Truncate(time.Hour)
	end = end.UTC().Truncate(time.Hour)
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s is before start %s", types.FormatTimeKey(end), types.FormatTimeKey(start))
	}
	hours := make([]time.Time, 0, int(end.Sub(start)/time.Hour))
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		hours = append(hours, t)
	}
	return hours, nil
}

// Normalizer builds dense tables from sparse observations.
type Normalizer struct {
	// DropLeadingHours removes this many hours from the front of every grid
	// before building rows. Zero keeps the whole grid.
	DropLeadingHours int
}

// Normalize returns one row per grid hour. Cells are the observed value, EMPTY
// for an explicit null or MISSING when the hour was not reported. Forecast
// observations are only used when the schema carries a forecast column, and
// the cleaned column is always MISSING until imputation fills it.
//
// The grid must be strictly increasing whole hours; otherwise no table is
// returned.
func (n Normalizer) Normalize(
	ctx context.Context,
	entity string,
	grid []time.Time,
	demand []Observation,
	forecast []Observation,
	schema types.SchemaVariant,
) (types.Table, error) {
	if n.DropLeadingHours < 0 {
		return types.Table{}, fmt.Errorf("invalid leading hours to drop: %d", n.DropLeadingHours)
	}
	if n.DropLeadingHours > 0 {
		if n.DropLeadingHours > len(grid) {
			grid = nil
		} else {
			grid = grid[n.DropLeadingHours:]
		}
	}
	if err := validateGrid(grid); err != nil {
		return types.Table{}, fmt.Errorf("invalid grid for %s: %w", entity, err)
	}

	demandByHour, demandOutside := index(grid, demand)
	var forecastByHour map[int64]*float64
	var forecastOutside int
	if schema.Has(types.ColumnForecast) {
		forecastByHour, forecastOutside = index(grid, forecast)
	}

	table := types.Table{
		Entity: entity,
		Schema: schema,
		Rows:   make([]types.Row, len(grid)),
	}
	var missing int
	for i, t := range grid {
		row := types.Row{
			Time:     t.UTC(),
			Demand:   resolve(demandByHour, t),
			Forecast: types.Missing(),
			Cleaned:  types.Missing(),
		}
		if forecastByHour != nil {
			row.Forecast = resolve(forecastByHour, t)
		}
		if row.Demand.Kind == types.ValueMissing {
			missing++
		}
		table.Rows[i] = row
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"normalized series",
		slog.String("entity", entity),
		slog.Int("rows", len(table.Rows)),
		slog.Int("missingDemand", missing),
		slog.Int("ignoredDemand", demandOutside),
		slog.Int("ignoredForecast", forecastOutside),
	)
	return table, nil
}

func validateGrid(grid []time.Time) error {
	for i, t := range grid {
		if !t.Equal(t.Truncate(time.Hour)) {
			return fmt.Errorf("timestamp %s at index %d is not on the hour", t.UTC().Format(time.RFC3339), i)
		}
		if i > 0 && !t.After(grid[i-1]) {
			return fmt.Errorf("timestamp %s at index %d is not after the previous hour", types.FormatTimeKey(t), i)
		}
	}
	return nil
}

// index keys observations by unix hour, keeping only hours present in the
// grid. When an hour is reported twice the later observation wins. It returns
// the number of observations that fell outside the grid.
func index(grid []time.Time, obs []Observation) (map[int64]*float64, int) {
	inGrid := make(map[int64]struct{}, len(grid))
	for _, t := range grid {
		inGrid[t.Unix()] = struct{}{}
	}
	byHour := make(map[int64]*float64, len(obs))
	var outside int
	for _, o := range obs {
		key := o.Time.Truncate(time.Hour).Unix()
		if _, ok := inGrid[key]; !ok {
			outside++
			continue
		}
		byHour[key] = o.Value
	}
	return byHour, outside
}

func resolve(byHour map[int64]*float64, t time.Time) types.Value {
	v, ok := byHour[t.Unix()]
	switch {
	case !ok:
		return types.Missing()
	case v == nil:
		return types.Empty()
	default:
		return types.Number(*v)
	}
}
