package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"callinsight-backend/internal/models"
	"callinsight-backend/internal/tracing"
)

const (
	topListSize          = 10
	recentActivityLimit  = 20
	activeUserWindow     = 7 * 24 * time.Hour
	defaultStatsLookback = 30
)

// rankedCounter counts keys and remembers first-seen order so ties rank deterministically.
type rankedCounter[K comparable] struct {
	order  []K
	counts map[K]int
}

func newRankedCounter[K comparable]() *rankedCounter[K] {
	return &rankedCounter[K]{counts: make(map[K]int)}
}

func (c *rankedCounter[K]) add(k K) {
	if _, ok := c.counts[k]; !ok {
		c.order = append(c.order, k)
	}
	c.counts[k]++
}

// top returns at most n keys by descending count.
func (c *rankedCounter[K]) top(n int) []K {
	keys := make([]K, len(c.order))
	copy(keys, c.order)
	sort.SliceStable(keys, func(i, j int) bool { return c.counts[keys[i]] > c.counts[keys[j]] })
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

type StatsWindow struct {
	Start time.Time
	End   time.Time
}

// AggregateActivity computes the window-derived parts of the dashboard
// statistics from entries already restricted to the window. Day keys use loc.
func AggregateActivity(entries []models.ActivityLogEntry, window StatsWindow, now time.Time, loc *time.Location) models.ActivityStats {
	activeSince := now.Add(-activeUserWindow)
	if window.Start.After(activeSince) {
		activeSince = window.Start
	}

	activeUsers := make(map[uuid.UUID]struct{})
	trend := make(map[string]int)
	users := newRankedCounter[uuid.UUID]()
	pages := newRankedCounter[string]()
	types := make(map[string]int)

	for _, e := range entries {
		types[e.ActivityType]++
		users.add(e.UserID)

		if !e.CreatedAt.Before(activeSince) && !e.CreatedAt.After(window.End) {
			activeUsers[e.UserID] = struct{}{}
		}

		switch e.ActivityType {
		case models.ActivityLogin:
			trend[FormatBucket(e.CreatedAt.In(loc), DimensionDay)]++
		case models.ActivityPageView:
			if e.PagePath != nil && *e.PagePath != "" {
				pages.add(*e.PagePath)
			}
		}
	}

	stats := models.ActivityStats{
		TotalActivities:  len(entries),
		ActiveUsers:      len(activeUsers),
		LoginTrend:       make([]models.DateCount, 0, len(trend)),
		TopUsers:         []models.UserCount{},
		TopPages:         []models.PageCount{},
		TypeDistribution: types,
		RecentActivities: []models.ActivityView{},
		Start:            window.Start,
		End:              window.End,
	}

	for date, n := range trend {
		stats.LoginTrend = append(stats.LoginTrend, models.DateCount{Date: date, Count: n})
	}
	sort.Slice(stats.LoginTrend, func(i, j int) bool { return stats.LoginTrend[i].Date < stats.LoginTrend[j].Date })

	for _, id := range users.top(topListSize) {
		stats.TopUsers = append(stats.TopUsers, models.UserCount{UserID: id, Count: users.counts[id]})
	}
	for _, path := range pages.top(topListSize) {
		stats.TopPages = append(stats.TopPages, models.PageCount{Path: path, Count: pages.counts[path]})
	}

	return stats
}

type statsSource interface {
	ListInRange(ctx context.Context, start, end time.Time, activityType string, userIDs []uuid.UUID) ([]models.ActivityLogEntry, error)
	ListRecent(ctx context.Context, limit int) ([]models.ActivityView, error)
	CountSince(ctx context.Context, activityType string, since time.Time) (int, error)
}

type profileLookup interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.UserProfile, error)
}

type StatsService struct {
	activity statsSource
	profiles profileLookup
	loc      *time.Location
	now      func() time.Time
	tracer   trace.Tracer
}

func NewStatsService(activity statsSource, profiles profileLookup, loc *time.Location) *StatsService {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsService{
		activity: activity,
		profiles: profiles,
		loc:      loc,
		now:      time.Now,
		tracer:   tracing.Tracer("services.stats"),
	}
}

// ResolveWindow turns explicit bounds or a day lookback into a window ending now.
func (s *StatsService) ResolveWindow(start, end *time.Time, days int) (StatsWindow, error) {
	now := s.now()
	if start != nil || end != nil {
		w := StatsWindow{End: now}
		if end != nil {
			w.End = *end
		}
		w.Start = w.End.AddDate(0, 0, -defaultStatsLookback)
		if start != nil {
			w.Start = *start
		}
		if w.Start.After(w.End) {
			return StatsWindow{}, fieldError("start_date", "start_date must be before end_date")
		}
		return w, nil
	}

	if days == 0 {
		days = defaultStatsLookback
	}
	if days < 0 || days > 3650 {
		return StatsWindow{}, fieldError("days", "days must be between 1 and 3650")
	}
	return StatsWindow{Start: now.AddDate(0, 0, -days), End: now}, nil
}

// Stats computes every section or fails as a whole; no partial statistics are returned.
func (s *StatsService) Stats(ctx context.Context, window StatsWindow) (result *models.ActivityStats, err error) {
	ctx, span := s.tracer.Start(ctx, "StatsService.Stats")
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	now := s.now()

	entries, err := s.activity.ListInRange(ctx, window.Start, window.End, "", nil)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	localNow := now.In(s.loc)
	midnight := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, s.loc)
	todayLogins, err := s.activity.CountSince(ctx, models.ActivityLogin, midnight)
	if err != nil {
		return nil, fmt.Errorf("count today's logins: %w", err)
	}

	recent, err := s.activity.ListRecent(ctx, recentActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}

	stats := AggregateActivity(entries, window, now, s.loc)
	stats.TodayLogins = todayLogins
	if recent != nil {
		stats.RecentActivities = recent
	}

	ids := make([]uuid.UUID, len(stats.TopUsers))
	for i, u := range stats.TopUsers {
		ids[i] = u.UserID
	}
	profiles, err := s.profiles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load top user profiles: %w", err)
	}
	for i := range stats.TopUsers {
		if p, ok := profiles[stats.TopUsers[i].UserID]; ok {
			stats.TopUsers[i].Email = p.Email
			stats.TopUsers[i].Name = p.DisplayName()
		}
	}

	return &stats, nil
}
