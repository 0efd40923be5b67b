package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/quarantine"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

// intParam reads a non-negative integer query parameter, falling back to def.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// decodeBody decodes an optional JSON body into v. An empty body is not an error.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	size, err := intParam(r, "batch_size", s.cfg.BatchSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.pipeline.ProcessStagingTable(r.Context(), size)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipeline.PipelineStats(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleQuarantineList(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.QuarantineFilter{
		Status: model.ReviewStatus(r.URL.Query().Get("status")),
		Source: r.URL.Query().Get("source"),
		Limit:  limit,
		Offset: offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown review status")
		return
	}
	list, err := s.reviewer.List(r.Context(), filter)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if list == nil {
		list = []model.QuarantineRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", s.cfg.ReprocessLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.pipeline.ProcessQuarantinedRecords(r.Context(), limit)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reprocessed": out, "count": len(out)})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req quarantine.Decision
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != model.ReviewApproved && req.Status != model.ReviewRejected {
		writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}

	if req.RawData != nil && req.Status != model.ReviewApproved {
		writeError(w, http.StatusBadRequest, "raw_data is only accepted with approved")
		return
	}

	rec, err := s.reviewer.Review(r.Context(), chi.URLParam(r, "id"), req)
	switch {
	case errors.Is(err, quarantine.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, quarantine.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleEnrichRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.enricher.RunScheduled(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type enrichBatchRequest struct {
	ProspectIDs []string `json:"prospect_ids"`
}

func (s *Server) handleEnrichBatch(w http.ResponseWriter, r *http.Request) {
	var req enrichBatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.ProspectIDs) == 0 {
		writeError(w, http.StatusBadRequest, "prospect_ids is required")
		return
	}
	summary, err := s.enricher.EnrichBatch(r.Context(), req.ProspectIDs)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleEnrichHealth(w http.ResponseWriter, r *http.Request) {
	h, err := s.enricher.CheckHealth(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}
