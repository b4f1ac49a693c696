package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/eiademand/pkg/aggregate"
	"github.com/raterudder/eiademand/pkg/eia"
	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/metrics"
	"github.com/raterudder/eiademand/pkg/pipeline"
	"github.com/raterudder/eiademand/pkg/roster"
	"github.com/raterudder/eiademand/pkg/storage"
	"github.com/raterudder/eiademand/pkg/types"
)

func main() {
	m := metrics.New()
	s := storage.Configured()
	r := roster.Configured()
	e := eia.Configured()
	agg := aggregate.Configured(s, r, m)
	p := pipeline.Configured(e, s, r, agg, m)

	startKey := lflag.String("start", "", "First hour to fetch as YYYYMMDDThhZ (defaults to -series-start)")
	endKey := lflag.String("end", "", "Hour to stop fetching at, exclusive, as YYYYMMDDThhZ (defaults to now)")
	step := lflag.String("step", "all", "Step to run (available: all, fetch, aggregate, impute, aggregate-imputed)")
	discover := lflag.Bool("discover", false, "List balancing authorities missing from the roster and exit")

	lflag.Configure()

	level, err := log.LevelFromFlags()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, p, e, *step, *startKey, *endKey, *discover); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "combine failed", slog.Any("error", err))
		_ = s.Close()
		os.Exit(1)
	}
	if err := s.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
	}
}

func run(ctx context.Context, p *pipeline.Pipeline, e *eia.Client, step, startKey, endKey string, discover bool) error {
	needsSource := discover || step == "all" || step == "fetch"
	if needsSource {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	if discover {
		unknown, err := p.Discover(ctx)
		if err != nil {
			return err
		}
		return printJSON(unknown)
	}

	start := p.SeriesStart()
	if startKey != "" {
		t, err := types.ParseTimeKey(startKey)
		if err != nil {
			return fmt.Errorf("invalid start: %w", err)
		}
		start = t
	}
	end := time.Now()
	if endKey != "" {
		t, err := types.ParseTimeKey(endKey)
		if err != nil {
			return fmt.Errorf("invalid end: %w", err)
		}
		end = t
	}

	switch step {
	case "all":
		report, err := p.Run(ctx, start, end)
		return errors.Join(err, printJSON(report))
	case "fetch":
		fetched, failed, err := p.Fetch(ctx, start, end)
		if err != nil {
			return err
		}
		var errs []error
		for ba, err := range failed {
			errs = append(errs, fmt.Errorf("fetch %s: %w", ba, err))
		}
		return errors.Join(append(errs, printJSON(fetched))...)
	case "aggregate", "aggregate-imputed":
		built, err := p.Aggregate(ctx, step == "aggregate-imputed")
		return errors.Join(err, printJSON(built))
	case "impute":
		reports, failed, err := p.Impute(ctx)
		if err != nil {
			return err
		}
		var errs []error
		for ba, err := range failed {
			errs = append(errs, fmt.Errorf("impute %s: %w", ba, err))
		}
		return errors.Join(append(errs, printJSON(reports))...)
	default:
		return fmt.Errorf("unknown step: %s", step)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
