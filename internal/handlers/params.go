package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"callinsight-backend/internal/services"
)

const dateOnly = "2006-01-02"

// parseDate accepts RFC 3339 or YYYY-MM-DD. A bare date used as an upper
// bound covers the whole day.
func parseDate(raw, field string, endOfDay bool, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateOnly, raw, loc)
	if err != nil {
		return nil, &services.ValidationError{Fields: map[string]string{field: field + " must be YYYY-MM-DD or RFC 3339"}}
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func parseDateRange(r *http.Request, loc *time.Location) (start, end *time.Time, err error) {
	q := r.URL.Query()
	if start, err = parseDate(q.Get("start_date"), "start_date", false, loc); err != nil {
		return nil, nil, err
	}
	if end, err = parseDate(q.Get("end_date"), "end_date", true, loc); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

// parsePage reads page/limit with the given default and cap.
func parsePage(r *http.Request, defaultLimit, maxLimit int) (page, limit, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, (page - 1) * limit
}

func parseOptionalInt(raw, field string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &services.ValidationError{Fields: map[string]string{field: field + " must be an integer"}}
	}
	return &n, nil
}

func parseOptionalUUID(raw, field string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &services.ValidationError{Fields: map[string]string{field: "Invalid " + field}}
	}
	return &id, nil
}

func parseIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, &services.ValidationError{Fields: map[string]string{"id": "Invalid ID"}}
	}
	return id, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &services.ValidationError{Fields: map[string]string{"body": "Invalid request body"}}
	}
	return nil
}
