package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/raterudder/eiademand/pkg/aggregate"
	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/storage"
	"github.com/raterudder/eiademand/pkg/types"
)

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := s.storage.ListTables(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list tables", slog.Any("error", err))
		writeJSONError(w, "failed to list tables", http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names, http.StatusOK)
}

// tableSchema returns the schema requested by the query, defaulting to the
// cleaned schema for imputed tables and the base schema otherwise.
func (s *Server) tableSchema(r *http.Request, name string) (types.SchemaVariant, error) {
	if q := r.URL.Query().Get("schema"); q != "" {
		return types.ParseSchemaVariant(q)
	}
	if strings.HasSuffix(name, storage.ImputedSuffix) {
		return types.SchemaWithForecastAndCleaned, nil
	}
	return s.agg.Schema(), nil
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	schema, err := s.tableSchema(r, name)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	layout := s.layout
	if q := r.URL.Query().Get("layout"); q != "" {
		layout, err = types.ParseLayout(q)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	table, err := s.storage.GetTable(ctx, name, schema)
	if err != nil {
		s.writeTableError(w, r, name, err)
		return
	}
	// the table keeps its stored name but is served in the requested schema
	table.Schema = schema

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := storage.EncodeTable(w, table, layout); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to write table", slog.String("name", name), slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

type aggregateRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Imputed bool     `json:"imputed"`
}

type aggregateResponse struct {
	Name  string    `json:"name"`
	Rows  int       `json:"rows"`
	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Limit body size to 1MB to prevent DoS
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode aggregate request", slog.Any("error", err))
		writeJSONError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Name == "" || len(req.Members) == 0 {
		writeJSONError(w, "name and members are required", http.StatusBadRequest)
		return
	}

	table, err := s.agg.Aggregate(ctx, req.Members, req.Name, req.Imputed)
	if err != nil {
		s.writeTableError(w, r, req.Name, err)
		return
	}

	resp := aggregateResponse{
		Name: storage.TableName(req.Name, req.Imputed),
		Rows: len(table.Rows),
	}
	if len(table.Rows) > 0 {
		resp.Start = table.Rows[0].Time
		resp.End = table.Rows[len(table.Rows)-1].Time
	}
	writeJSON(w, resp, http.StatusOK)
}

// writeTableError maps the table error taxonomy onto status codes.
func (s *Server) writeTableError(w http.ResponseWriter, r *http.Request, name string, err error) {
	ctx := r.Context()
	var alignErr *aggregate.AlignmentError
	var schemaErr *types.SchemaError
	var parseErr *types.ParseError
	switch {
	case errors.As(err, &alignErr):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &schemaErr), errors.As(err, &parseErr):
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, aggregate.ErrNoUsableEntities):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrTableNotFound):
		writeJSONError(w, "table not found", http.StatusNotFound)
	default:
		log.Ctx(ctx).ErrorContext(ctx, "table request failed", slog.String("name", name), slog.Any("error", err))
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}
