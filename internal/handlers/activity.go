package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/middleware"
	"callinsight-backend/internal/models"
	"callinsight-backend/internal/services"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

type activityRecorder interface {
	Record(ctx context.Context, caller *models.Caller, in services.RecordInput) (*models.ActivityLogEntry, error)
	List(ctx context.Context, f models.ActivityFilter) ([]models.ActivityView, int, error)
	ExportRows(ctx context.Context, f models.ActivityFilter) ([]models.ActivityView, error)
}

type activityStats interface {
	ResolveWindow(start, end *time.Time, days int) (services.StatsWindow, error)
	Stats(ctx context.Context, window services.StatsWindow) (*models.ActivityStats, error)
}

type anomalyFinder interface {
	Detect(ctx context.Context, start, end *time.Time) ([]models.Anomaly, error)
}

type usageReporter interface {
	UserStats(ctx context.Context, q services.UsageQuery) ([]models.UserUsage, error)
}

type ActivityHandler struct {
	activity  activityRecorder
	stats     activityStats
	anomalies anomalyFinder
	usage     usageReporter
	loc       *time.Location
	log       *logger.Logger
}

func NewActivityHandler(activity activityRecorder, stats activityStats, anomalies anomalyFinder, usage usageReporter, loc *time.Location, log *logger.Logger) *ActivityHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ActivityHandler{activity: activity, stats: stats, anomalies: anomalies, usage: usage, loc: loc, log: log}
}

var activitySortColumns = map[string]bool{
	"created_at":    true,
	"activity_type": true,
	"page_path":     true,
	"user_id":       true,
}

func (h *ActivityHandler) parseFilter(r *http.Request) (models.ActivityFilter, error) {
	q := r.URL.Query()
	f := models.ActivityFilter{
		ActivityType: strings.TrimSpace(q.Get("activity_type")),
		PagePath:     strings.TrimSpace(q.Get("page_path")),
		SortBy:       "created_at",
		SortDesc:     !strings.EqualFold(q.Get("sort_order"), "asc"),
	}
	if sortBy := q.Get("sort_by"); activitySortColumns[sortBy] {
		f.SortBy = sortBy
	}

	var err error
	if f.UserID, err = parseOptionalUUID(q.Get("user_id"), "user_id"); err != nil {
		return f, err
	}
	if f.Start, f.End, err = parseDateRange(r, h.loc); err != nil {
		return f, err
	}
	return f, nil
}

// List handles GET /activity (admin).
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	page, limit, offset := parsePage(r, defaultActivityLimit, maxActivityLimit)
	f.Limit, f.Offset = limit, offset

	views, total, err := h.activity.List(r.Context(), f)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if views == nil {
		views = []models.ActivityView{}
	}
	writeJSON(w, http.StatusOK, pagedResp(views, page, limit, total))
}

// Record handles POST /activity. The actor is always the authenticated caller.
func (h *ActivityHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req models.RecordActivityRequest
	if err := decodeBody(r, &req); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	entry, err := h.activity.Record(r.Context(), middleware.CallerFrom(r.Context()), services.RecordInput{
		RecordActivityRequest: req,
		IPAddress:             middleware.ClientIP(r),
		HeaderUserAgent:       r.UserAgent(),
		IdempotencyKey:        strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if errors.Is(err, services.ErrDuplicateActivity) {
		writeJSON(w, http.StatusOK, models.Response{OK: true, Message: "Activity already recorded"})
		return
	}
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResp(entry))
}

// Stats handles GET /activity/stats.
func (h *ActivityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r, h.loc)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	days := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil || days < 1 {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"days": "days must be a positive integer"}, r))
			return
		}
	}

	window, err := h.stats.ResolveWindow(start, end, days)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	stats, err := h.stats.Stats(r.Context(), window)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResp(stats))
}

// Anomalies handles GET /activity/anomalies (admin).
func (h *ActivityHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r, h.loc)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	anomalies, err := h.anomalies.Detect(r.Context(), start, end)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}
	writeJSON(w, http.StatusOK, okResp(anomalies))
}

// UserStats handles GET /activity/user-stats.
func (h *ActivityHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dim, err := services.ParseDimension(q.Get("dimension"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	userID, err := parseOptionalUUID(q.Get("user_id"), "user_id")
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	start, end, err := parseDateRange(r, h.loc)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	usage, err := h.usage.UserStats(r.Context(), services.UsageQuery{
		UserID:    userID,
		Start:     start,
		End:       end,
		Dimension: dim,
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResp(usage))
}

// Export handles GET /activity/export (admin).
func (h *ActivityHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := services.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	f, err := h.parseFilter(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	views, err := h.activity.ExportRows(r.Context(), f)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if views == nil {
		views = []models.ActivityView{}
	}
	if err := writeExport(w, format, "activity", services.ActivityTable(views), views); err != nil {
		handleServiceError(w, r, h.log, err)
	}
}
