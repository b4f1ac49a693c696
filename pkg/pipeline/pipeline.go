// Package pipeline runs the batch steps: fetching balancing authority series,
// aggregating them, imputing gaps and aggregating the imputed tables.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/eiademand/pkg/aggregate"
	"github.com/raterudder/eiademand/pkg/eia"
	"github.com/raterudder/eiademand/pkg/impute"
	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/metrics"
	"github.com/raterudder/eiademand/pkg/roster"
	"github.com/raterudder/eiademand/pkg/series"
	"github.com/raterudder/eiademand/pkg/storage"
	"github.com/raterudder/eiademand/pkg/types"
	"golang.org/x/sync/errgroup"
)

// DefaultSeriesStart is the first hour of the EIA hourly demand data.
var DefaultSeriesStart = time.Date(2015, 7, 1, 5, 0, 0, 0, time.UTC)

// Source provides raw series. It is implemented by *eia.Client.
type Source interface {
	GetSeries(ctx context.Context, seriesID string) (eia.Series, error)
	GetCategory(ctx context.Context, categoryID string) ([]eia.ChildSeries, error)
}

// Pipeline ties the source, storage and aggregation together.
type Pipeline struct {
	source      Source
	db          storage.Database
	roster      *roster.Roster
	agg         *aggregate.Aggregator
	metrics     *metrics.Metrics
	normalizer  series.Normalizer
	concurrency int
	seriesStart time.Time
	categoryID  string
}

// Configured sets up a Pipeline based on flags.
func Configured(source Source, db storage.Database, r *roster.Roster, agg *aggregate.Aggregator, m *metrics.Metrics) *Pipeline {
	concurrency := lflag.Int("fetch-concurrency", 4, "Number of balancing authorities fetched at once")
	dropLeading := lflag.Int("drop-leading-hours", 0, "Hours removed from the start of every normalized series")
	seriesStart := lflag.String("series-start", types.FormatTimeKey(DefaultSeriesStart), "First hour of every table, as YYYYMMDDThhZ")
	categoryID := lflag.String("eia-category-id", eia.DefaultCategoryID, "EIA category listing the demand series of every balancing authority")

	p := &Pipeline{
		source:  source,
		db:      db,
		roster:  r,
		agg:     agg,
		metrics: m,
	}
	lflag.Do(func() {
		if *concurrency < 1 {
			panic(fmt.Sprintf("fetch-concurrency must be positive: %d", *concurrency))
		}
		start, err := types.ParseTimeKey(*seriesStart)
		if err != nil {
			panic(fmt.Sprintf("invalid series-start: %v", err))
		}
		p.concurrency = *concurrency
		p.normalizer = series.Normalizer{DropLeadingHours: *dropLeading}
		p.seriesStart = start
		p.categoryID = *categoryID
	})
	return p
}

// New returns a Pipeline fetching concurrency entities at a time.
func New(source Source, db storage.Database, r *roster.Roster, agg *aggregate.Aggregator, m *metrics.Metrics, concurrency int) *Pipeline {
	return &Pipeline{
		source:      source,
		db:          db,
		roster:      r,
		agg:         agg,
		metrics:     m,
		concurrency: max(concurrency, 1),
		seriesStart: DefaultSeriesStart,
		categoryID:  eia.DefaultCategoryID,
	}
}

// SeriesStart returns the first hour of every table.
func (p *Pipeline) SeriesStart() time.Time {
	return p.seriesStart
}

// Report summarizes a run. Failed maps an entity or target to the error that
// stopped it.
type Report struct {
	Start             time.Time         `json:"start"`
	End               time.Time         `json:"end"`
	Fetched           []string          `json:"fetched"`
	Aggregated        []string          `json:"aggregated"`
	Imputed           []impute.Report   `json:"imputed"`
	ImputedAggregated []string          `json:"imputedAggregated"`
	Failed            map[string]string `json:"failed,omitempty"`
}

func (r *Report) fail(name string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]string)
	}
	r.Failed[name] = err.Error()
}

// Fetch downloads and normalizes every balancing authority of the roster over
// the hours in [start, end) and stores one table per authority. Authorities
// are fetched concurrently. A failed authority does not stop the others; it
// is returned in the failure map.
func (p *Pipeline) Fetch(ctx context.Context, start, end time.Time) ([]string, map[string]error, error) {
	grid, err := series.HourlyRange(start, end)
	if err != nil {
		return nil, nil, err
	}

	var mu sync.Mutex
	var fetched []string
	failed := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, ba := range p.roster.BAs() {
		g.Go(func() error {
			ctx := log.WithAttrs(gctx, slog.String("entity", ba))
			err := p.fetchOne(ctx, ba, grid)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to fetch entity", slog.Any("error", err))
				p.metrics.FetchFailed(ba)
				failed[ba] = err
				return nil
			}
			fetched = append(fetched, ba)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	slices.Sort(fetched)
	return fetched, failed, nil
}

func (p *Pipeline) fetchOne(ctx context.Context, ba string, grid []time.Time) error {
	schema := p.agg.Schema()

	demand, err := p.source.GetSeries(ctx, eia.DemandSeriesID(ba))
	if err != nil {
		return err
	}
	var forecast eia.Series
	if schema.Has(types.ColumnForecast) {
		forecast, err = p.source.GetSeries(ctx, eia.ForecastSeriesID(ba))
		if err != nil {
			return err
		}
	}

	table, err := p.normalizer.Normalize(ctx, ba, grid, demand.Observations, forecast.Observations, schema)
	if err != nil {
		return err
	}
	if err := p.db.PutTable(ctx, ba, table); err != nil {
		return fmt.Errorf("failed to store %s: %w", ba, err)
	}
	return nil
}

// Aggregate builds every target of the roster in order.
func (p *Pipeline) Aggregate(ctx context.Context, imputed bool) ([]string, error) {
	return p.agg.AggregateAll(ctx, p.roster.Targets, imputed)
}

// Impute cleans the table of every usable balancing authority and stores the
// result under its imputed name. Targets are not imputed; their imputed tables
// are built by aggregating imputed members.
func (p *Pipeline) Impute(ctx context.Context) ([]impute.Report, map[string]error, error) {
	if !p.agg.Schema().Has(types.ColumnForecast) {
		return nil, nil, fmt.Errorf("imputation requires the forecast schema, have %s", p.agg.Schema())
	}

	var reports []impute.Report
	failed := make(map[string]error)
	for _, ba := range p.roster.BAs() {
		if err := ctx.Err(); err != nil {
			return reports, failed, err
		}
		if !p.roster.IsUsable(ba) {
			continue
		}
		r, err := p.imputeOne(ctx, ba)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to impute entity", slog.String("entity", ba), slog.Any("error", err))
			failed[ba] = err
			continue
		}
		p.metrics.CellsImputed(ba, r.Absent)
		reports = append(reports, r)
	}
	return reports, failed, nil
}

func (p *Pipeline) imputeOne(ctx context.Context, ba string) (impute.Report, error) {
	table, err := p.db.GetTable(ctx, ba, p.agg.Schema())
	if err != nil {
		return impute.Report{}, err
	}
	table.Entity = ba
	cleaned, r, err := impute.Clean(ctx, table)
	if err != nil {
		return impute.Report{}, err
	}
	name := storage.TableName(ba, true)
	if err := p.db.PutTable(ctx, name, cleaned); err != nil {
		return impute.Report{}, fmt.Errorf("failed to store %s: %w", name, err)
	}
	return r, nil
}

// Run fetches [start, end), aggregates, imputes and aggregates the imputed
// tables. Failures of single entities or targets are collected in the report
// and the returned error while the remaining work continues. Imputation is
// skipped when the schema has no forecast column.
func (p *Pipeline) Run(ctx context.Context, start, end time.Time) (Report, error) {
	r := Report{
		Start: start.UTC().Truncate(time.Hour),
		End:   end.UTC().Truncate(time.Hour),
	}
	var errs []error

	fetched, failed, err := p.Fetch(ctx, start, end)
	if err != nil {
		return r, err
	}
	r.Fetched = fetched
	for ba, err := range failed {
		r.fail(ba, err)
		errs = append(errs, fmt.Errorf("fetch %s: %w", ba, err))
	}

	r.Aggregated, err = p.Aggregate(ctx, false)
	if err != nil {
		errs = append(errs, err)
		failTargets(&r, err, false)
	}

	if p.agg.Schema().Has(types.ColumnForecast) {
		reports, failed, err := p.Impute(ctx)
		r.Imputed = reports
		for ba, err := range failed {
			r.fail(storage.TableName(ba, true), err)
			errs = append(errs, fmt.Errorf("impute %s: %w", ba, err))
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			r.ImputedAggregated, err = p.Aggregate(ctx, true)
			if err != nil {
				errs = append(errs, err)
				failTargets(&r, err, true)
			}
		}
	} else {
		log.Ctx(ctx).WarnContext(ctx, "skipping imputation without forecast column", slog.String("schema", p.agg.Schema().String()))
	}

	p.metrics.RunFinished()
	log.Ctx(ctx).InfoContext(
		ctx,
		"pipeline run finished",
		slog.Int("fetched", len(r.Fetched)),
		slog.Int("aggregated", len(r.Aggregated)),
		slog.Int("imputed", len(r.Imputed)),
		slog.Int("imputedAggregated", len(r.ImputedAggregated)),
		slog.Int("failed", len(r.Failed)),
	)
	return r, errors.Join(errs...)
}

// failTargets records every *aggregate.TargetError joined in err.
func failTargets(r *Report, err error, imputed bool) {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return
	}
	for _, e := range joined.Unwrap() {
		var terr *aggregate.TargetError
		if errors.As(e, &terr) {
			r.fail(storage.TableName(terr.Target, imputed), terr.Err)
		}
	}
}

// Discover lists the balancing authorities the source publishes demand for
// that the roster does not mention.
func (p *Pipeline) Discover(ctx context.Context) ([]string, error) {
	children, err := p.source.GetCategory(ctx, p.categoryID)
	if err != nil {
		return nil, err
	}
	known := p.roster.BAs()
	var unknown []string
	for _, c := range children {
		ba, ok := eia.BalancingAuthority(c.ID)
		if !ok {
			continue
		}
		if slices.Contains(known, ba) || p.roster.IsTarget(ba) {
			continue
		}
		log.Ctx(ctx).InfoContext(ctx, "found balancing authority missing from roster", slog.String("entity", ba), slog.String("name", c.Name))
		unknown = append(unknown, ba)
	}
	slices.Sort(unknown)
	return unknown, nil
}
