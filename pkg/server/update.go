package server

import (
	"log/slog"
	"net/http"

	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/pipeline"
)

type updateResponse struct {
	Error  string          `json:"error,omitempty"`
	Report pipeline.Report `json:"report"`
}

// handleUpdate runs the pipeline from the first series hour up to the current
// hour. Only one run may be in progress at a time.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !s.updateMu.TryLock() {
		log.Ctx(ctx).WarnContext(ctx, "update already running")
		writeJSONError(w, "update already running", http.StatusConflict)
		return
	}
	defer s.updateMu.Unlock()

	start := s.pipeline.SeriesStart()
	end := s.now()
	log.Ctx(ctx).InfoContext(ctx, "starting update", slog.Time("start", start), slog.Time("end", end))

	report, err := s.pipeline.Run(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "update finished with errors", slog.Any("error", err))
		writeJSON(w, updateResponse{Error: err.Error(), Report: report}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, updateResponse{Report: report}, http.StatusOK)
}
