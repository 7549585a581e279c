package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"callinsight-backend/internal/middleware"
	"callinsight-backend/internal/models"
	"callinsight-backend/internal/services"
)

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) models.Response {
	t.Helper()
	var resp models.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return resp
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func withCaller(req *http.Request, caller *models.Caller) *http.Request {
	return req.WithContext(middleware.WithCaller(req.Context(), caller))
}

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSession(t *testing.T) {
	caller := &models.Caller{ID: uuid.New(), Email: "rep@example.com", Name: "Rep", Role: models.RoleSalesperson}

	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil), caller)
	rr := httptest.NewRecorder()
	Session(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Data models.Caller `json:"data"`
	}
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Data != *caller {
		t.Fatalf("unexpected caller %+v", body.Data)
	}

	rr = httptest.NewRecorder()
	Session(rr, httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller, got %d", rr.Code)
	}
}

func TestParseDate(t *testing.T) {
	end, err := parseDate("2024-03-10", "end_date", true, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2024, 3, 10, 23, 59, 59, 999999999, time.UTC); !end.Equal(want) {
		t.Fatalf("end of day: got %s, want %s", end, want)
	}

	start, err := parseDate("2024-03-10T08:00:00Z", "start_date", false, time.UTC)
	if err != nil || start.Hour() != 8 {
		t.Fatalf("rfc3339: got %v, %v", start, err)
	}

	if got, err := parseDate("", "start_date", false, time.UTC); got != nil || err != nil {
		t.Fatalf("blank should be nil, got %v, %v", got, err)
	}

	_, err = parseDate("10/03/2024", "start_date", false, time.UTC)
	verr, ok := err.(*services.ValidationError)
	if !ok || verr.Fields["start_date"] == "" {
		t.Fatalf("expected start_date validation error, got %v", err)
	}
}
