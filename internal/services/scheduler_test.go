package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"callinsight-backend/internal/models"
)

func TestShouldSendByLastSent(t *testing.T) {
	now := time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)

	if !shouldSendByLastSent("", 24*time.Hour, now) {
		t.Fatalf("expected empty last-sent value to allow sending")
	}

	if !shouldSendByLastSent("not-a-date", 24*time.Hour, now) {
		t.Fatalf("expected invalid timestamp to allow sending")
	}

	recent := now.Add(-2 * time.Hour).Format(time.RFC3339)
	if shouldSendByLastSent(recent, 24*time.Hour, now) {
		t.Fatalf("expected recent send timestamp to block sending")
	}

	old := now.Add(-48 * time.Hour).Format(time.RFC3339)
	if !shouldSendByLastSent(old, 24*time.Hour, now) {
		t.Fatalf("expected old send timestamp to allow sending")
	}
}

type stubDetector struct {
	anomalies []models.Anomaly
	err       error
	calls     int
}

func (d *stubDetector) Detect(ctx context.Context, start, end *time.Time) ([]models.Anomaly, error) {
	d.calls++
	return d.anomalies, d.err
}

type sentDigest struct {
	to     string
	counts map[string]int
	total  int
}

type stubMailer struct {
	sent []sentDigest
}

func (m *stubMailer) SendAnomalyDigestEmail(to, name string, counts map[string]int, total int) error {
	m.sent = append(m.sent, sentDigest{to: to, counts: counts, total: total})
	return nil
}

type memoryState map[string]string

func (m memoryState) GetString(ctx context.Context, key string) (string, error) { return m[key], nil }

func (m memoryState) SetString(ctx context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestScheduler_SweepSessions(t *testing.T) {
	store := newMemoryActivityStore()
	now := time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)
	store.sessions = []models.LoginSession{
		{ID: uuid.New(), UserID: uuid.New(), LoginAt: now.Add(-30 * time.Hour), IsActive: true},
		{ID: uuid.New(), UserID: uuid.New(), LoginAt: now.Add(-2 * time.Hour), IsActive: true},
	}
	s := NewScheduler(store, nil, nil, nil, nil, SchedulerConfig{SessionMaxAge: 24 * time.Hour}, nil)

	s.sweepSessions(context.Background(), now)

	if store.sessions[0].IsActive || store.sessions[0].LogoutAt == nil || !store.sessions[0].LogoutAt.Equal(now) {
		t.Fatalf("expected old session to be closed at now, got %+v", store.sessions[0])
	}
	if !store.sessions[1].IsActive {
		t.Fatalf("expected recent session to stay active")
	}
}

func TestScheduler_AnomalyDigest(t *testing.T) {
	now := time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)
	admins := newMemoryActivityStore()
	admins.addProfile(&models.UserProfile{ID: uuid.New(), Email: "boss@example.com", Role: models.RoleAdmin, IsActive: true})
	admins.addProfile(&models.UserProfile{ID: uuid.New(), Email: "former@example.com", Role: models.RoleAdmin, IsActive: false})
	admins.addProfile(&models.UserProfile{ID: uuid.New(), Email: "rep@example.com", Role: models.RoleSalesperson, IsActive: true})

	detector := &stubDetector{anomalies: []models.Anomaly{
		{Type: models.AnomalyMultipleLogins},
		{Type: models.AnomalyInactive},
		{Type: models.AnomalyInactive},
	}}
	mailer := &stubMailer{}
	state := memoryState{}
	s := NewScheduler(nil, detector, admins, mailer, state, SchedulerConfig{DigestInterval: 24 * time.Hour}, nil)

	s.sendAnomalyDigest(context.Background(), now)

	if len(mailer.sent) != 1 || mailer.sent[0].to != "boss@example.com" {
		t.Fatalf("expected one digest to the active admin, got %+v", mailer.sent)
	}
	if mailer.sent[0].total != 3 || mailer.sent[0].counts[models.AnomalyInactive] != 2 {
		t.Fatalf("unexpected digest contents %+v", mailer.sent[0])
	}
	if state[anomalyDigestLastSentKey] != now.Format(time.RFC3339) {
		t.Fatalf("expected last-sent time to be stored")
	}

	s.sendAnomalyDigest(context.Background(), now.Add(time.Hour))
	if detector.calls != 1 || len(mailer.sent) != 1 {
		t.Fatalf("expected digest to be skipped within the interval")
	}
}

func TestScheduler_AnomalyDigestDetectionFailure(t *testing.T) {
	detector := &stubDetector{err: errors.New("db down")}
	mailer := &stubMailer{}
	state := memoryState{}
	s := NewScheduler(nil, detector, newMemoryActivityStore(), mailer, state, SchedulerConfig{DigestInterval: time.Hour}, nil)

	s.sendAnomalyDigest(context.Background(), time.Now().UTC())

	if len(mailer.sent) != 0 || state[anomalyDigestLastSentKey] != "" {
		t.Fatalf("expected nothing sent or stored after a failed detection")
	}
}
