package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/eiademand/pkg/aggregate"
	"github.com/raterudder/eiademand/pkg/eia"
	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/metrics"
	"github.com/raterudder/eiademand/pkg/pipeline"
	"github.com/raterudder/eiademand/pkg/roster"
	"github.com/raterudder/eiademand/pkg/server"
	"github.com/raterudder/eiademand/pkg/storage"
)

func main() {
	// init packages
	m := metrics.New()
	s := storage.Configured()
	r := roster.Configured()
	e := eia.Configured()
	agg := aggregate.Configured(s, r, m)
	p := pipeline.Configured(e, s, r, agg, m)

	// init server
	srv := server.Configured(s, agg, p, m)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromFlags()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)
	slog.SetDefault(log.Ctx(context.Background()))
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// the tables stay readable without an api key, only updates need one
	if err := e.Validate(); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "eia client is not configured, updates will fail", slog.Any("error", err))
	}

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
