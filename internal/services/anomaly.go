package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"callinsight-backend/internal/models"
	"callinsight-backend/internal/tracing"
)

const (
	concurrentLoginWindow  = 5 * time.Minute
	frequentLoginWindow    = time.Hour
	frequentLoginThreshold = 5
	dormantAccountAge      = 30 * 24 * time.Hour
	defaultAnomalyLookback = 30 * 24 * time.Hour
)

// AnomalyInput is everything one detection pass reads.
type AnomalyInput struct {
	Sessions    []models.LoginSession
	Logins      []models.ActivityLogEntry
	Salespeople []*models.UserProfile
	Profiles    map[uuid.UUID]*models.UserProfile
}

// DetectAnomalies flags concurrent logins from different IPs, login bursts in
// the hour before now, and salesperson accounts that never logged in. The
// result is ordered most recent first.
func DetectAnomalies(in AnomalyInput, now time.Time) []models.Anomaly {
	var out []models.Anomaly
	out = append(out, detectConcurrentLogins(in.Sessions)...)
	out = append(out, detectFrequentLogins(in.Logins, now)...)
	out = append(out, detectDormantAccounts(in.Salespeople, now)...)

	for i := range out {
		if p, ok := in.Profiles[out[i].UserID]; ok {
			out[i].UserEmail = p.Email
			out[i].UserName = p.DisplayName()
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out
}

func sessionDetails(s models.LoginSession) map[string]interface{} {
	return map[string]interface{}{
		"id":         s.ID,
		"login_at":   s.LoginAt,
		"ip_address": s.IPAddress,
		"user_agent": s.UserAgent,
	}
}

// detectConcurrentLogins compares every pair of a user's sessions. Cost is
// quadratic in sessions per user per window, not in overall log size.
func detectConcurrentLogins(sessions []models.LoginSession) []models.Anomaly {
	byUser := make(map[uuid.UUID][]models.LoginSession)
	var users []uuid.UUID
	for _, s := range sessions {
		if _, ok := byUser[s.UserID]; !ok {
			users = append(users, s.UserID)
		}
		byUser[s.UserID] = append(byUser[s.UserID], s)
	}

	var out []models.Anomaly
	for _, userID := range users {
		list := byUser[userID]
		sort.SliceStable(list, func(i, j int) bool { return list[i].LoginAt.Before(list[j].LoginAt) })

		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				gap := list[j].LoginAt.Sub(list[i].LoginAt)
				if gap >= concurrentLoginWindow {
					break
				}
				if list[i].IPAddress == list[j].IPAddress {
					continue
				}
				out = append(out, models.Anomaly{
					ID:       fmt.Sprintf("%s:%s:%s", models.AnomalyMultipleLogins, list[i].ID, list[j].ID),
					Type:     models.AnomalyMultipleLogins,
					Severity: models.SeverityMedium,
					UserID:   userID,
					Description: fmt.Sprintf("Logged in from %s and %s %s apart",
						list[i].IPAddress, list[j].IPAddress, gap.Round(time.Second)),
					DetectedAt: list[j].LoginAt,
					Details: map[string]interface{}{
						"session1": sessionDetails(list[i]),
						"session2": sessionDetails(list[j]),
					},
				})
			}
		}
	}
	return out
}

func detectFrequentLogins(logins []models.ActivityLogEntry, now time.Time) []models.Anomaly {
	since := now.Add(-frequentLoginWindow)
	counts := make(map[uuid.UUID]int)
	latest := make(map[uuid.UUID]time.Time)
	var users []uuid.UUID

	for _, e := range logins {
		if e.ActivityType != models.ActivityLogin || e.CreatedAt.Before(since) || e.CreatedAt.After(now) {
			continue
		}
		if _, ok := counts[e.UserID]; !ok {
			users = append(users, e.UserID)
		}
		counts[e.UserID]++
		if e.CreatedAt.After(latest[e.UserID]) {
			latest[e.UserID] = e.CreatedAt
		}
	}

	var out []models.Anomaly
	for _, userID := range users {
		n := counts[userID]
		if n <= frequentLoginThreshold {
			continue
		}
		out = append(out, models.Anomaly{
			ID:          fmt.Sprintf("%s:%s", models.AnomalyFrequentLogin, userID),
			Type:        models.AnomalyFrequentLogin,
			Severity:    models.SeverityLow,
			UserID:      userID,
			Description: fmt.Sprintf("%d logins within the last hour", n),
			DetectedAt:  latest[userID],
			Details: map[string]interface{}{
				"login_count": n,
				"time_range":  "1h",
			},
		})
	}
	return out
}

func detectDormantAccounts(profiles []*models.UserProfile, now time.Time) []models.Anomaly {
	var out []models.Anomaly
	for _, p := range profiles {
		if p.Role != models.RoleSalesperson || p.LastLoginAt != nil {
			continue
		}
		age := now.Sub(p.CreatedAt)
		if age <= dormantAccountAge {
			continue
		}
		days := int(age / (24 * time.Hour))
		out = append(out, models.Anomaly{
			ID:          fmt.Sprintf("%s:%s", models.AnomalyInactive, p.ID),
			Type:        models.AnomalyInactive,
			Severity:    models.SeverityLow,
			UserID:      p.ID,
			Description: fmt.Sprintf("Account created %d days ago has never logged in", days),
			DetectedAt:  now,
			Details: map[string]interface{}{
				"created_at":          p.CreatedAt,
				"days_since_creation": days,
			},
		})
	}
	return out
}

type anomalySource interface {
	ListSessions(ctx context.Context, start, end time.Time) ([]models.LoginSession, error)
	ListInRange(ctx context.Context, start, end time.Time, activityType string, userIDs []uuid.UUID) ([]models.ActivityLogEntry, error)
}

type profileDirectory interface {
	ListByRole(ctx context.Context, role string, userID *uuid.UUID) ([]*models.UserProfile, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.UserProfile, error)
}

type AnomalyService struct {
	activity anomalySource
	profiles profileDirectory
	now      func() time.Time
	tracer   trace.Tracer
}

func NewAnomalyService(activity anomalySource, profiles profileDirectory) *AnomalyService {
	return &AnomalyService{
		activity: activity,
		profiles: profiles,
		now:      time.Now,
		tracer:   tracing.Tracer("services.anomaly"),
	}
}

// Detect runs one read-only pass over [start, end]. Nil bounds default to the
// 30 days ending now. Any read failure fails the whole pass.
func (s *AnomalyService) Detect(ctx context.Context, start, end *time.Time) (result []models.Anomaly, err error) {
	ctx, span := s.tracer.Start(ctx, "AnomalyService.Detect")
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	now := s.now()
	windowEnd := now
	if end != nil {
		windowEnd = *end
	}
	windowStart := windowEnd.Add(-defaultAnomalyLookback)
	if start != nil {
		windowStart = *start
	}
	if windowStart.After(windowEnd) {
		return nil, fieldError("start_date", "start_date must be before end_date")
	}

	sessions, err := s.activity.ListSessions(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var logins []models.ActivityLogEntry
	loginFrom := windowStart
	if burstStart := now.Add(-frequentLoginWindow); burstStart.After(loginFrom) {
		loginFrom = burstStart
	}
	if !loginFrom.After(windowEnd) {
		logins, err = s.activity.ListInRange(ctx, loginFrom, windowEnd, models.ActivityLogin, nil)
		if err != nil {
			return nil, fmt.Errorf("list logins: %w", err)
		}
	}

	salespeople, err := s.profiles.ListByRole(ctx, models.RoleSalesperson, nil)
	if err != nil {
		return nil, fmt.Errorf("list salespeople: %w", err)
	}

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, sess := range sessions {
		if !seen[sess.UserID] {
			seen[sess.UserID] = true
			ids = append(ids, sess.UserID)
		}
	}
	for _, e := range logins {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	profiles, err := s.profiles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if profiles == nil {
		profiles = make(map[uuid.UUID]*models.UserProfile)
	}
	for _, p := range salespeople {
		profiles[p.ID] = p
	}

	result = DetectAnomalies(AnomalyInput{
		Sessions:    sessions,
		Logins:      logins,
		Salespeople: salespeople,
		Profiles:    profiles,
	}, now)

	counts := map[string]int{
		models.AnomalyMultipleLogins: 0,
		models.AnomalyFrequentLogin:  0,
		models.AnomalyInactive:       0,
	}
	for _, a := range result {
		counts[a.Type]++
	}
	for typ, n := range counts {
		anomaliesDetected.WithLabelValues(typ).Set(float64(n))
	}
	span.SetAttributes(attribute.Int("anomalies.count", len(result)))

	return result, nil
}
