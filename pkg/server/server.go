// Package server exposes the demand tables and the batch pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/metrics"
	"github.com/raterudder/eiademand/pkg/pipeline"
	"github.com/raterudder/eiademand/pkg/storage"
	"github.com/raterudder/eiademand/pkg/types"
)

// tokenVerifier is a function that validates a Google ID Token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Aggregator builds aggregated tables on request. It is implemented by
// *aggregate.Aggregator.
type Aggregator interface {
	Aggregate(ctx context.Context, entities []string, outName string, imputed bool) (types.Table, error)
	Schema() types.SchemaVariant
}

// Runner runs the batch pipeline. It is implemented by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, start, end time.Time) (pipeline.Report, error)
	SeriesStart() time.Time
}

// Server handles the HTTP API. It serves stored tables, builds ad-hoc
// aggregates and triggers pipeline runs.
type Server struct {
	storage  storage.Database
	agg      Aggregator
	pipeline Runner
	metrics  *metrics.Metrics

	listenAddr   string
	httpServer   *http.Server
	writeTimeout time.Duration
	layout       types.Layout

	updateSpecificEmail string
	oidcVerifier        tokenVerifier
	bypassAuth          bool
	serverName          string

	// updateMu is held while a pipeline run started over HTTP is in progress
	updateMu sync.Mutex
	now      func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, agg Aggregator, p Runner, m *metrics.Metrics) *Server {
	srv := &Server{
		storage:    db,
		agg:        agg,
		pipeline:   p,
		metrics:    m,
		serverName: "eiademand",
		now:        time.Now,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	writeTimeout := lflag.Duration("http-write-timeout", 10*time.Minute, "Write timeout of HTTP responses, which bounds /api/update runs")
	layout := lflag.String("download-layout", "series", "Header layout of downloaded tables (available: series, calendar)")
	updateSpecificEmail := lflag.String("update-specific-email", "", "email to validate for /api/update and /api/aggregate")
	oidcAudience := lflag.String("oidc-audience", "", "audience to validate Google id tokens against")
	dev := lflag.Bool("dev", false, "Allow unauthenticated writes when no oidc-audience is set")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.writeTimeout = *writeTimeout
		l, err := types.ParseLayout(*layout)
		if err != nil {
			panic(fmt.Sprintf("invalid download-layout: %v", err))
		}
		srv.layout = l
		srv.updateSpecificEmail = *updateSpecificEmail
		if *oidcAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.oidcVerifier = provider.Verifier(&oidc.Config{ClientID: *oidcAudience}).Verify
		} else if *dev {
			srv.bypassAuth = true
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/tables", s.handleListTables)
	apiMux.HandleFunc("GET /api/tables/{name}", s.handleGetTable)
	apiMux.Handle("POST /api/aggregate", s.authMiddleware(http.HandlerFunc(s.handleAggregate)))
	apiMux.Handle("POST /api/update", s.authMiddleware(http.HandlerFunc(s.handleUpdate)))

	mux := http.NewServeMux()
	mux.Handle("/api/", s.logMiddleware(apiMux))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, struct {
		Error string `json:"error"`
	}{Error: msg}, code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithAttrs(r.Context(), slog.String("reqPath", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
