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

// BuildUsageTimelines produces one usage row per profile, in profile order
// before sorting. Logins and actions (action or page_view) are counted per
// bucket; other activity types are ignored. Profiles with no activity keep an
// empty timeline. Rows with a last login come first, newest login first.
func BuildUsageTimelines(profiles []*models.UserProfile, entries []models.ActivityLogEntry, dim Dimension, loc *time.Location) []models.UserUsage {
	if loc == nil {
		loc = time.UTC
	}

	usage := make([]models.UserUsage, len(profiles))
	buckets := make([]map[string]*models.TimelinePoint, len(profiles))
	index := make(map[uuid.UUID]int, len(profiles))

	for i, p := range profiles {
		usage[i] = models.UserUsage{
			UserID:         p.ID,
			Email:          p.Email,
			Name:           p.DisplayName(),
			LastLoginAt:    p.LastLoginAt,
			LastActivityAt: p.LastActivityAt,
		}
		buckets[i] = make(map[string]*models.TimelinePoint)
		index[p.ID] = i
	}

	for _, e := range entries {
		i, ok := index[e.UserID]
		if !ok {
			continue
		}

		isLogin := e.ActivityType == models.ActivityLogin
		isAction := e.ActivityType == models.ActivityAction || e.ActivityType == models.ActivityPageView
		if !isLogin && !isAction {
			continue
		}

		key := FormatBucket(e.CreatedAt.In(loc), dim)
		point, ok := buckets[i][key]
		if !ok {
			point = &models.TimelinePoint{Date: key}
			buckets[i][key] = point
		}

		if isLogin {
			usage[i].LoginCount++
			point.Logins++
		} else {
			usage[i].ActionCount++
			point.Actions++
		}
	}

	for i := range usage {
		timeline := make([]models.TimelinePoint, 0, len(buckets[i]))
		for _, point := range buckets[i] {
			timeline = append(timeline, *point)
		}
		sort.Slice(timeline, func(a, b int) bool { return timeline[a].Date < timeline[b].Date })
		usage[i].Timeline = timeline
	}

	sort.SliceStable(usage, func(a, b int) bool {
		la, lb := usage[a].LastLoginAt, usage[b].LastLoginAt
		switch {
		case la != nil && lb == nil:
			return true
		case la == nil:
			return false
		default:
			return la.After(*lb)
		}
	})

	return usage
}

type usageSource interface {
	ListInRange(ctx context.Context, start, end time.Time, activityType string, userIDs []uuid.UUID) ([]models.ActivityLogEntry, error)
}

type salespeopleLister interface {
	ListByRole(ctx context.Context, role string, userID *uuid.UUID) ([]*models.UserProfile, error)
}

type UsageService struct {
	activity usageSource
	profiles salespeopleLister
	loc      *time.Location
	now      func() time.Time
	tracer   trace.Tracer
}

func NewUsageService(activity usageSource, profiles salespeopleLister, loc *time.Location) *UsageService {
	if loc == nil {
		loc = time.UTC
	}
	return &UsageService{
		activity: activity,
		profiles: profiles,
		loc:      loc,
		now:      time.Now,
		tracer:   tracing.Tracer("services.usage"),
	}
}

type UsageQuery struct {
	UserID    *uuid.UUID
	Start     *time.Time
	End       *time.Time
	Dimension Dimension
}

func (s *UsageService) UserStats(ctx context.Context, q UsageQuery) (result []models.UserUsage, err error) {
	ctx, span := s.tracer.Start(ctx, "UsageService.UserStats")
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	end := s.now()
	if q.End != nil {
		end = *q.End
	}
	start := DefaultLookback(q.Dimension, end)
	if q.Start != nil {
		start = *q.Start
	}
	if start.After(end) {
		return nil, fieldError("start_date", "start_date must be before end_date")
	}

	profiles, err := s.profiles.ListByRole(ctx, models.RoleSalesperson, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("list salespeople: %w", err)
	}
	if len(profiles) == 0 {
		return []models.UserUsage{}, nil
	}

	ids := make([]uuid.UUID, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}

	entries, err := s.activity.ListInRange(ctx, start, end, "", ids)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	return BuildUsageTimelines(profiles, entries, q.Dimension, s.loc), nil
}
