// Package aggregate sums per-entity demand tables into region and
// interconnection tables.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/metrics"
	"github.com/raterudder/eiademand/pkg/roster"
	"github.com/raterudder/eiademand/pkg/storage"
	"github.com/raterudder/eiademand/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Aggregator loads entity tables from storage, sums them and stores the
// result under a new name.
type Aggregator struct {
	db      storage.Database
	roster  *roster.Roster
	metrics *metrics.Metrics
	schema  types.SchemaVariant
	policy  Policy
}

// Configured sets up an Aggregator based on flags.
func Configured(db storage.Database, r *roster.Roster, m *metrics.Metrics) *Aggregator {
	schema := lflag.String("schema", "forecast", "Value columns of raw and aggregated tables (available: basic, forecast)")
	policy := lflag.String("double-missing-policy", "zero", "Result when both cells are MISSING/EMPTY (available: zero, preserve)")

	a := &Aggregator{
		db:      db,
		roster:  r,
		metrics: m,
	}
	lflag.Do(func() {
		s, err := types.ParseSchemaVariant(*schema)
		if err != nil {
			panic(fmt.Sprintf("invalid schema: %v", err))
		}
		if s == types.SchemaWithForecastAndCleaned {
			panic("invalid schema: cleaned tables are only produced by imputation")
		}
		a.schema = s
		switch *policy {
		case "zero":
			a.policy = PolicyZero
		case "preserve":
			a.policy = PolicyPreserveSentinel
		default:
			panic(fmt.Sprintf("unknown double-missing-policy: %s", *policy))
		}
	})
	return a
}

// New returns an Aggregator reading and writing the given base schema with
// the canonical policy.
func New(db storage.Database, r *roster.Roster, m *metrics.Metrics, schema types.SchemaVariant) *Aggregator {
	return &Aggregator{
		db:      db,
		roster:  r,
		metrics: m,
		schema:  schema,
		policy:  PolicyZero,
	}
}

// Schema returns the schema of non-imputed tables.
func (a *Aggregator) Schema() types.SchemaVariant {
	return a.schema
}

// Aggregate sums the tables of entities into a table stored as outName and
// returns it. When imputed is true the mean-imputed tables, including their
// cleaned column, are read and the result is stored with the imputed suffix.
//
// Entities that are not usable are skipped. The first usable entity seeds the
// sum. Under PolicyZero its sentinels are replaced by 0 first; under
// PolicyPreserveSentinel they are kept and survive as long as every later
// entity is a sentinel at that cell too. Nothing is stored if any table fails
// to load or is misaligned with the seed.
func (a *Aggregator) Aggregate(ctx context.Context, entities []string, outName string, imputed bool) (types.Table, error) {
	schema := a.schema
	if imputed {
		schema = types.SchemaWithForecastAndCleaned
	}
	ctx = log.WithAttrs(ctx, slog.String("target", outName), slog.Bool("imputed", imputed))

	var acc *accumulator
	for _, entity := range entities {
		if !a.roster.IsUsable(entity) {
			log.Ctx(ctx).WarnContext(ctx, "skipping unusable entity", slog.String("entity", entity))
			a.metrics.EntitySkipped(outName)
			continue
		}

		if acc == nil {
			log.Ctx(ctx).InfoContext(ctx, "loading first entity", slog.String("entity", entity))
		} else {
			log.Ctx(ctx).InfoContext(ctx, "loading subsequent entity", slog.String("entity", entity))
		}
		table, err := a.db.GetTable(ctx, storage.TableName(entity, imputed), schema)
		if err != nil {
			a.metrics.Aggregated(outName, metrics.ResultLoadError)
			return types.Table{}, fmt.Errorf("failed to load %s for %s: %w", entity, outName, err)
		}
		table.Entity = entity

		if acc == nil {
			acc = newAccumulator(outName, schema, a.policy, table)
			continue
		}
		if err := acc.add(table); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "table alignment failed", slog.String("entity", entity), slog.Any("error", err))
			a.metrics.Aggregated(outName, metrics.ResultAlignmentError)
			return types.Table{}, err
		}
	}
	if acc == nil {
		a.metrics.Aggregated(outName, metrics.ResultEmpty)
		return types.Table{}, fmt.Errorf("%w for %s", ErrNoUsableEntities, outName)
	}

	name := storage.TableName(outName, imputed)
	if err := a.db.PutTable(ctx, name, acc.table); err != nil {
		a.metrics.Aggregated(outName, metrics.ResultStoreError)
		return types.Table{}, fmt.Errorf("failed to store %s: %w", name, err)
	}
	a.metrics.Aggregated(outName, metrics.ResultOK)
	a.metrics.RowsWritten(len(acc.table.Rows))
	log.Ctx(ctx).InfoContext(
		ctx,
		"stored aggregate",
		slog.String("name", name),
		slog.Int("rows", len(acc.table.Rows)),
		slog.Int("merged", acc.merged),
	)
	return acc.table, nil
}

// AggregateAll builds every target in order. A failed target is logged and
// reported in the returned error as a *TargetError; the remaining targets are
// still built. It returns the names of the targets that were stored.
func (a *Aggregator) AggregateAll(ctx context.Context, targets []roster.Target, imputed bool) ([]string, error) {
	var built []string
	var errs []error
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := a.Aggregate(ctx, t.Members, t.Name, imputed); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to aggregate target", slog.String("target", t.Name), slog.Any("error", err))
			errs = append(errs, &TargetError{Target: t.Name, Err: err})
			continue
		}
		built = append(built, t.Name)
	}
	return built, errors.Join(errs...)
}

// Sum folds tables left to right into a new table named target using the
// canonical policy. The first table seeds the sum and the inputs are not
// modified.
func Sum(target string, schema types.SchemaVariant, tables ...types.Table) (types.Table, error) {
	return PolicyZero.Sum(target, schema, tables...)
}

// Sum folds tables left to right into a new table named target.
func (p Policy) Sum(target string, schema types.SchemaVariant, tables ...types.Table) (types.Table, error) {
	if len(tables) == 0 {
		return types.Table{}, fmt.Errorf("%w for %s", ErrNoUsableEntities, target)
	}
	acc := newAccumulator(target, schema, p, tables[0])
	for _, t := range tables[1:] {
		if err := acc.add(t); err != nil {
			return types.Table{}, err
		}
	}
	return acc.table, nil
}

// SumTree returns the same table as Sum but adds tables pairwise, one level
// of the reduction tree at a time, with the pairs of a level summed
// concurrently. Alignment is checked against the seed up front so a
// misaligned input is reported exactly as Sum would report it.
func (p Policy) SumTree(ctx context.Context, target string, schema types.SchemaVariant, tables ...types.Table) (types.Table, error) {
	if len(tables) == 0 {
		return types.Table{}, fmt.Errorf("%w for %s", ErrNoUsableEntities, target)
	}
	for _, t := range tables[1:] {
		if err := checkAligned(target, tables[0], t); err != nil {
			return types.Table{}, err
		}
	}

	level := make([]types.Table, len(tables))
	copy(level, tables)
	level[0] = newAccumulator(target, schema, p, tables[0]).table

	for len(level) > 1 {
		if err := ctx.Err(); err != nil {
			return types.Table{}, err
		}
		next := make([]types.Table, (len(level)+1)/2)
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next[i/2] = level[i]
				continue
			}
			g.Go(func() error {
				next[i/2] = p.combineTables(schema, level[i], level[i+1])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return types.Table{}, err
		}
		level = next
	}

	out := level[0]
	out.Entity = target
	out.Schema = schema
	return out, nil
}

// combineTables returns a new table whose schema cells are Combine(a, b) and
// whose other cells are copied from a. The tables must be aligned.
func (p Policy) combineTables(schema types.SchemaVariant, a, b types.Table) types.Table {
	out := a.Clone()
	cols := schema.Columns()
	for i := range out.Rows {
		row := &out.Rows[i]
		for _, c := range cols {
			row.Set(c, p.Combine(row.Get(c), b.Rows[i].Get(c)))
		}
	}
	return out
}

type accumulator struct {
	seed   string
	table  types.Table
	policy Policy
	merged int
}

func newAccumulator(target string, schema types.SchemaVariant, policy Policy, seed types.Table) *accumulator {
	table := seed.Clone()
	table.Entity = target
	table.Schema = schema
	if policy == PolicyZero {
		ZeroSentinels(&table)
	}
	return &accumulator{
		seed:   seed.Entity,
		table:  table,
		policy: policy,
		merged: 1,
	}
}

// add merges t into the accumulator after checking every row is aligned. On
// error the accumulator is left unchanged.
func (acc *accumulator) add(t types.Table) error {
	if err := checkAligned(acc.table.Entity, types.Table{Entity: acc.seed, Rows: acc.table.Rows}, t); err != nil {
		return err
	}
	cols := acc.table.Schema.Columns()
	for i := range acc.table.Rows {
		row := &acc.table.Rows[i]
		for _, c := range cols {
			row.Set(c, acc.policy.Combine(row.Get(c), t.Rows[i].Get(c)))
		}
	}
	acc.merged++
	return nil
}

// checkAligned returns an AlignmentError for the first row at which t differs
// from seed in timestamp or existence.
func checkAligned(target string, seed, t types.Table) error {
	n := max(len(seed.Rows), len(t.Rows))
	for i := 0; i < n; i++ {
		var want, got types.Row
		if i < len(seed.Rows) {
			want = seed.Rows[i]
		}
		if i < len(t.Rows) {
			got = t.Rows[i]
		}
		if i >= len(seed.Rows) || i >= len(t.Rows) || !want.Time.Equal(got.Time) {
			return &AlignmentError{
				Target: target,
				Seed:   seed.Entity,
				Entity: t.Entity,
				Row:    i,
				Want:   want.Time,
				Got:    got.Time,
			}
		}
	}
	return nil
}
