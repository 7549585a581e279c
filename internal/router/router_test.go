package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"callinsight-backend/internal/handlers"
	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/middleware"
	"callinsight-backend/internal/models"
)

const testSecret = "router-secret"

type profileTable map[uuid.UUID]*models.UserProfile

func (p profileTable) GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	profile, ok := p[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return profile, nil
}

func newTestRouter(profiles profileTable) http.Handler {
	log := logger.Discard()
	return New(
		middleware.NewAuthenticator(testSecret, profiles),
		handlers.NewActivityHandler(nil, nil, nil, nil, time.UTC, log),
		handlers.NewAnalysisHandler(nil, log),
		handlers.NewCustomerHandler(nil, log),
		handlers.NewUserHandler(nil, log),
		handlers.NewUploadHandler(nil, 1<<20, time.Second, log),
		log,
		"http://localhost:3000",
	)
}

func authed(t *testing.T, method, path string, id uuid.UUID) *http.Request {
	t.Helper()
	token, err := middleware.SignToken(testSecret, id, "someone@example.com", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(profileTable{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("metrics: %d", rr.Code)
	}
}

func TestRoutesRequireAuthentication(t *testing.T) {
	h := newTestRouter(profileTable{})

	for _, path := range []string{"/api/v1/auth/session", "/api/v1/analyses", "/api/v1/activity"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestAdminRoutesRejectSalespeople(t *testing.T) {
	rep := &models.UserProfile{ID: uuid.New(), Email: "rep@example.com", Role: models.RoleSalesperson, IsActive: true}
	h := newTestRouter(profileTable{rep.ID: rep})

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/activity"},
		{http.MethodGet, "/api/v1/activity/stats"},
		{http.MethodGet, "/api/v1/activity/anomalies"},
		{http.MethodGet, "/api/v1/activity/user-stats"},
		{http.MethodGet, "/api/v1/activity/export"},
		{http.MethodPost, "/api/v1/analyses/batch"},
		{http.MethodDelete, "/api/v1/analyses/" + uuid.NewString()},
		{http.MethodDelete, "/api/v1/customers/" + uuid.NewString()},
		{http.MethodGet, "/api/v1/admin/users"},
		{http.MethodPost, "/api/v1/admin/users/" + uuid.NewString() + "/reset-password"},
	}
	for _, rt := range routes {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authed(t, rt.method, rt.path, rep.ID))
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403, got %d", rt.method, rt.path, rr.Code)
		}
	}
}

func TestSessionRoute(t *testing.T) {
	admin := &models.UserProfile{ID: uuid.New(), Email: "boss@example.com", Role: models.RoleAdmin, IsActive: true}
	h := newTestRouter(profileTable{admin.ID: admin})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authed(t, http.MethodGet, "/api/v1/auth/session", admin.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"role":"admin"`) {
		t.Fatalf("session should report the profile role: %s", rr.Body.String())
	}
	if rr.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("response should carry a request id")
	}
}
