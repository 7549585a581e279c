package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/middleware"
	"callinsight-backend/internal/models"
	"callinsight-backend/internal/services"
)

type analysisManager interface {
	Create(ctx context.Context, caller *models.Caller, in models.AnalysisInput) (*models.AnalysisRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error)
	List(ctx context.Context, f models.AnalysisFilter) ([]*models.AnalysisRecord, error)
	Update(ctx context.Context, id uuid.UUID, in models.AnalysisInput) (*models.AnalysisRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Batch(ctx context.Context, req models.BatchRequest) (int64, error)
	ExportRows(ctx context.Context, f models.AnalysisFilter) ([]*models.AnalysisRecord, error)
	Stats(ctx context.Context) (*models.AnalysisStats, error)
}

type AnalysisHandler struct {
	analyses analysisManager
	log      *logger.Logger
}

func NewAnalysisHandler(analyses analysisManager, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{analyses: analyses, log: log}
}

func parseAnalysisFilter(r *http.Request) (models.AnalysisFilter, error) {
	q := r.URL.Query()
	f := models.AnalysisFilter{
		RecordingID:     strings.TrimSpace(q.Get("recording_id")),
		SalespersonName: strings.TrimSpace(q.Get("salesperson_name")),
		Tags:            splitList(q.Get("tags")),
	}
	var err error
	if f.CustomerID, err = parseOptionalUUID(q.Get("customer_id"), "customer_id"); err != nil {
		return f, err
	}
	if f.ScoreMin, err = parseOptionalInt(q.Get("score_min"), "score_min"); err != nil {
		return f, err
	}
	if f.ScoreMax, err = parseOptionalInt(q.Get("score_max"), "score_max"); err != nil {
		return f, err
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	return f, nil
}

func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseAnalysisFilter(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	records, err := h.analyses.List(r.Context(), f)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResp(records))
}

func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.AnalysisInput
	if err := decodeBody(r, &in); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	a, err := h.analyses.Create(r.Context(), middleware.CallerFrom(r.Context()), in)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResp(a))
}

func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	a, err := h.analyses.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResp(a))
}

// Update replaces the whole record; omitted optional fields are cleared.
func (h *AnalysisHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	var in models.AnalysisInput
	if err := decodeBody(r, &in); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	a, err := h.analyses.Update(r.Context(), id, in)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResp(a))
}

func (h *AnalysisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if err := h.analyses.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{OK: true, Message: "Analysis deleted"})
}

func (h *AnalysisHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if err := decodeBody(r, &req); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	n, err := h.analyses.Batch(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResp(map[string]interface{}{
		"action":   req.Action,
		"affected": n,
	}))
}

func (h *AnalysisHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analyses.Stats(r.Context())
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResp(stats))
}

func (h *AnalysisHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := services.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	f, err := parseAnalysisFilter(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	records, err := h.analyses.ExportRows(r.Context(), f)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if err := writeExport(w, format, "analyses", services.AnalysisTable(records), records); err != nil {
		handleServiceError(w, r, h.log, err)
	}
}
