package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/models"
	"callinsight-backend/internal/services"
)

// activityLedger is an in-memory activity log and session table.
type activityLedger struct {
	mu       sync.Mutex
	entries  []models.ActivityLogEntry
	sessions []models.LoginSession
	profiles map[uuid.UUID]*models.UserProfile
	lastList models.ActivityFilter
}

func newActivityLedger(profiles ...*models.UserProfile) *activityLedger {
	l := &activityLedger{profiles: make(map[uuid.UUID]*models.UserProfile)}
	for _, p := range profiles {
		l.profiles[p.ID] = p
	}
	return l
}

func (l *activityLedger) Record(ctx context.Context, e *models.ActivityLogEntry, session *models.LoginSession) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if session != nil {
		l.sessions = append(l.sessions, *session)
	}
	l.entries = append(l.entries, *e)
	if p, ok := l.profiles[e.UserID]; ok {
		at := e.CreatedAt
		p.LastActivityAt = &at
		if e.ActivityType == models.ActivityLogin {
			p.LastLoginAt = &at
		}
	}
	return nil
}

func (l *activityLedger) List(ctx context.Context, f models.ActivityFilter) ([]models.ActivityView, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastList = f
	var out []models.ActivityView
	for _, e := range l.entries {
		out = append(out, models.ActivityView{ActivityLogEntry: e})
	}
	return out, len(out), nil
}

func (l *activityLedger) ListSessions(ctx context.Context, start, end time.Time) ([]models.LoginSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.LoginSession
	for _, s := range l.sessions {
		if !s.LoginAt.Before(start) && !s.LoginAt.After(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (l *activityLedger) ListInRange(ctx context.Context, start, end time.Time, activityType string, userIDs []uuid.UUID) ([]models.ActivityLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.ActivityLogEntry
	for _, e := range l.entries {
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}
		if activityType != "" && e.ActivityType != activityType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *activityLedger) ListByRole(ctx context.Context, role string, userID *uuid.UUID) ([]*models.UserProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.UserProfile
	for _, p := range l.profiles {
		if p.Role == role && (userID == nil || p.ID == *userID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *activityLedger) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.UserProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[uuid.UUID]*models.UserProfile)
	for _, id := range ids {
		if p, ok := l.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// onceKeys accepts each idempotency key a single time.
type onceKeys map[string]bool

func (k onceKeys) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if k[key] {
		return false, nil
	}
	k[key] = true
	return true, nil
}

func (k onceKeys) Release(ctx context.Context, key string) error {
	delete(k, key)
	return nil
}

func postActivity(t *testing.T, h *ActivityHandler, caller *models.Caller, remoteAddr string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/activity", jsonBody(t, body))
	req.RemoteAddr = remoteAddr
	req.Header.Set("User-Agent", "test-agent")
	rr := httptest.NewRecorder()
	h.Record(rr, withCaller(req, caller))
	return rr
}

func TestActivityHandler_LoginsFromTwoAddressesRaiseOneAnomaly(t *testing.T) {
	rep := &models.UserProfile{
		ID:        uuid.New(),
		Email:     "rep@example.com",
		Role:      models.RoleSalesperson,
		IsActive:  true,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	ledger := newActivityLedger(rep)
	caller := &models.Caller{ID: rep.ID, Email: rep.Email, Role: rep.Role}

	loginAt := time.Now().Add(-10 * time.Minute)
	activity := services.NewActivityService(ledger, nil, logger.Discard()).
		WithClock(func() time.Time { return loginAt })
	h := NewActivityHandler(activity, nil, services.NewAnomalyService(ledger, ledger), nil, time.UTC, logger.Discard())

	if rr := postActivity(t, h, caller, "1.1.1.1:4000", map[string]string{"activity_type": "login"}); rr.Code != http.StatusCreated {
		t.Fatalf("first login: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	loginAt = loginAt.Add(3 * time.Minute)
	if rr := postActivity(t, h, caller, "2.2.2.2:4000", map[string]string{"activity_type": "login"}); rr.Code != http.StatusCreated {
		t.Fatalf("second login: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := httptest.NewRecorder()
	h.Anomalies(rr, httptest.NewRequest(http.MethodGet, "/api/v1/activity/anomalies", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Data []models.Anomaly `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 {
		t.Fatalf("expected exactly one anomaly, got %+v", body.Data)
	}
	a := body.Data[0]
	if a.Type != models.AnomalyMultipleLogins || a.Severity != models.SeverityMedium {
		t.Fatalf("unexpected anomaly %+v", a)
	}
	if a.UserID != rep.ID || a.UserEmail != rep.Email {
		t.Fatalf("anomaly not attributed to the rep: %+v", a)
	}
	if !a.DetectedAt.Equal(loginAt.UTC()) {
		t.Fatalf("detected_at should be the later login %s, got %s", loginAt.UTC(), a.DetectedAt)
	}
}

func TestActivityHandler_RecordUsesCallerAndRequestAddress(t *testing.T) {
	ledger := newActivityLedger()
	h := NewActivityHandler(services.NewActivityService(ledger, nil, logger.Discard()), nil, nil, nil, time.UTC, logger.Discard())
	caller := &models.Caller{ID: uuid.New(), Role: models.RoleSalesperson}

	rr := postActivity(t, h, caller, "10.0.0.7:51234", map[string]interface{}{
		"activity_type": "page_view",
		"page_path":     "/dashboard",
		"user_id":       uuid.New().String(),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(ledger.entries))
	}
	e := ledger.entries[0]
	if e.UserID != caller.ID {
		t.Fatalf("entry must belong to the caller, got %s", e.UserID)
	}
	if e.IPAddress != "10.0.0.7" || e.UserAgent != "test-agent" {
		t.Fatalf("unexpected ip/user agent %q %q", e.IPAddress, e.UserAgent)
	}
	if string(e.Metadata) != "{}" {
		t.Fatalf("metadata should default to {}, got %s", e.Metadata)
	}
}

func TestActivityHandler_RecordValidation(t *testing.T) {
	ledger := newActivityLedger()
	h := NewActivityHandler(services.NewActivityService(ledger, nil, logger.Discard()), nil, nil, nil, time.UTC, logger.Discard())
	caller := &models.Caller{ID: uuid.New(), Role: models.RoleSalesperson}

	rr := postActivity(t, h, caller, "10.0.0.7:1", map[string]string{"activity_type": "download"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp.Code != "VALIDATION_ERROR" || resp.Fields["activity_type"] == "" {
		t.Fatalf("expected activity_type field error, got %+v", resp)
	}
	if len(ledger.entries) != 0 {
		t.Fatalf("nothing should be written on validation failure")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activity", strings.NewReader("{"))
	rr = httptest.NewRecorder()
	h.Record(rr, withCaller(req, caller))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", rr.Code)
	}
}

func TestActivityHandler_RecordIdempotencyKey(t *testing.T) {
	ledger := newActivityLedger()
	h := NewActivityHandler(services.NewActivityService(ledger, onceKeys{}, logger.Discard()), nil, nil, nil, time.UTC, logger.Discard())
	caller := &models.Caller{ID: uuid.New(), Role: models.RoleSalesperson}

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/activity", jsonBody(t, map[string]string{"activity_type": "action", "action": "export"}))
		req.Header.Set("Idempotency-Key", "abc-123")
		rr := httptest.NewRecorder()
		h.Record(rr, withCaller(req, caller))
		return rr
	}

	if rr := send(); rr.Code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d", rr.Code)
	}
	rr := send()
	if rr.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", rr.Code)
	}
	if resp := decodeResponse(t, rr); !resp.OK || resp.Message != "Activity already recorded" {
		t.Fatalf("unexpected replay response %+v", resp)
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("replay must not write, got %d entries", len(ledger.entries))
	}
}

func TestActivityHandler_ListFilters(t *testing.T) {
	ledger := newActivityLedger()
	h := NewActivityHandler(services.NewActivityService(ledger, nil, logger.Discard()), nil, nil, nil, time.UTC, logger.Discard())
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/activity?page=3&limit=500&sort_by=ip_address&sort_order=asc&user_id="+userID.String()+"&start_date=2024-03-01&end_date=2024-03-01", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	f := ledger.lastList
	if f.Limit != maxActivityLimit || f.Offset != 2*maxActivityLimit {
		t.Fatalf("unexpected paging limit=%d offset=%d", f.Limit, f.Offset)
	}
	if f.SortBy != "created_at" || f.SortDesc {
		t.Fatalf("unknown sort column should fall back to created_at asc, got %s desc=%v", f.SortBy, f.SortDesc)
	}
	if f.UserID == nil || *f.UserID != userID {
		t.Fatalf("user filter not passed through")
	}
	if f.End == nil || f.End.Sub(*f.Start) != 24*time.Hour-time.Nanosecond {
		t.Fatalf("bare end date should cover the whole day, got %v..%v", f.Start, f.End)
	}

	resp := decodeResponse(t, rr)
	if resp.Pagination == nil || resp.Pagination.Page != 3 || resp.Pagination.Limit != maxActivityLimit {
		t.Fatalf("unexpected pagination %+v", resp.Pagination)
	}

	rr = httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/activity?user_id=nope", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad user_id: expected 400, got %d", rr.Code)
	}
}

type failingActivity struct{ err error }

func (f failingActivity) Record(ctx context.Context, caller *models.Caller, in services.RecordInput) (*models.ActivityLogEntry, error) {
	return nil, f.err
}

func (f failingActivity) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityView, int, error) {
	return nil, 0, f.err
}

func (f failingActivity) ExportRows(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityView, error) {
	return nil, f.err
}

func TestActivityHandler_StoreFailureIsInternalError(t *testing.T) {
	h := NewActivityHandler(failingActivity{err: errors.New("connection reset")}, nil, nil, nil, time.UTC, logger.Discard())

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/activity", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if resp := decodeResponse(t, rr); resp.Error != "An unexpected error occurred" {
		t.Fatalf("internal detail leaked: %q", resp.Error)
	}
}

func TestActivityHandler_Export(t *testing.T) {
	ledger := newActivityLedger()
	ledger.entries = append(ledger.entries, models.ActivityLogEntry{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		ActivityType: models.ActivityLogin,
		IPAddress:    "1.1.1.1",
		Metadata:     json.RawMessage(`{}`),
		CreatedAt:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	h := NewActivityHandler(services.NewActivityService(ledger, nil, logger.Discard()), nil, nil, nil, time.UTC, logger.Discard())

	rr := httptest.NewRecorder()
	h.Export(rr, httptest.NewRequest(http.MethodGet, "/api/v1/activity/export?format=csv", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, `attachment; filename="activity-`) || !strings.HasSuffix(cd, `.csv"`) {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if !strings.HasPrefix(rr.Body.String(), "\ufeffid,created_at") {
		t.Fatalf("csv should start with BOM and header, got %q", rr.Body.String()[:20])
	}
	if ledger.lastList.Limit != 10000 {
		t.Fatalf("export should request up to 10000 rows, got %d", ledger.lastList.Limit)
	}

	rr = httptest.NewRecorder()
	h.Export(rr, httptest.NewRequest(http.MethodGet, "/api/v1/activity/export?format=pdf", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown format: expected 400, got %d", rr.Code)
	}
}
