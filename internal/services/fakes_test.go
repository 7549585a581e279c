package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"callinsight-backend/internal/models"
)

// memoryActivityStore keeps the activity log, session ledger and profiles in memory.
type memoryActivityStore struct {
	mu        sync.Mutex
	entries   []models.ActivityLogEntry
	sessions  []models.LoginSession
	profiles  map[uuid.UUID]*models.UserProfile
	failNext  int
	recordErr error
	readErr   error
	calls     int
}

func newMemoryActivityStore() *memoryActivityStore {
	return &memoryActivityStore{profiles: make(map[uuid.UUID]*models.UserProfile)}
}

func (m *memoryActivityStore) addProfile(p *models.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

func (m *memoryActivityStore) Record(ctx context.Context, e *models.ActivityLogEntry, session *models.LoginSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failNext > 0 {
		m.failNext--
		return m.recordErr
	}

	switch e.ActivityType {
	case models.ActivityLogin:
		m.sessions = append(m.sessions, *session)
	case models.ActivityLogout:
		latest := -1
		for i, s := range m.sessions {
			if s.UserID == e.UserID && s.IsActive && (latest < 0 || s.LoginAt.After(m.sessions[latest].LoginAt)) {
				latest = i
			}
		}
		if latest >= 0 {
			at := e.CreatedAt
			m.sessions[latest].IsActive = false
			m.sessions[latest].LogoutAt = &at
		}
	}
	m.entries = append(m.entries, *e)

	if p, ok := m.profiles[e.UserID]; ok {
		at := e.CreatedAt
		p.LastActivityAt = &at
		if e.ActivityType == models.ActivityLogin {
			p.LastLoginAt = &at
		}
	}
	return nil
}

func (m *memoryActivityStore) List(ctx context.Context, f models.ActivityFilter) ([]models.ActivityView, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, 0, m.readErr
	}
	var out []models.ActivityView
	for _, e := range m.entries {
		if f.UserID != nil && e.UserID != *f.UserID {
			continue
		}
		if f.ActivityType != "" && e.ActivityType != f.ActivityType {
			continue
		}
		out = append(out, models.ActivityView{ActivityLogEntry: e})
	}
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memoryActivityStore) ListRecent(ctx context.Context, limit int) ([]models.ActivityView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []models.ActivityView
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, models.ActivityView{ActivityLogEntry: m.entries[i]})
	}
	return out, nil
}

func (m *memoryActivityStore) ListInRange(ctx context.Context, start, end time.Time, activityType string, userIDs []uuid.UUID) ([]models.ActivityLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	allowed := make(map[uuid.UUID]bool)
	for _, id := range userIDs {
		allowed[id] = true
	}
	var out []models.ActivityLogEntry
	for _, e := range m.entries {
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}
		if activityType != "" && e.ActivityType != activityType {
			continue
		}
		if len(allowed) > 0 && !allowed[e.UserID] {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryActivityStore) CountSince(ctx context.Context, activityType string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	n := 0
	for _, e := range m.entries {
		if e.ActivityType == activityType && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memoryActivityStore) ListSessions(ctx context.Context, start, end time.Time) ([]models.LoginSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []models.LoginSession
	for _, s := range m.sessions {
		if s.LoginAt.Before(start) || s.LoginAt.After(end) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryActivityStore) CloseStaleSessions(ctx context.Context, cutoff, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.sessions {
		if m.sessions[i].IsActive && m.sessions[i].LoginAt.Before(cutoff) {
			at := now
			m.sessions[i].IsActive = false
			m.sessions[i].LogoutAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memoryActivityStore) ListByRole(ctx context.Context, role string, userID *uuid.UUID) ([]*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []*models.UserProfile
	for _, p := range m.profiles {
		if p.Role != role || (userID != nil && p.ID != *userID) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryActivityStore) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make(map[uuid.UUID]*models.UserProfile)
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time { return c.t }

func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }
