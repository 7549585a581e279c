package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/models"
)

const (
	anomalyDigestLastSentKey = "jobs:anomaly_digest:last_sent_at"
	schedulerPollInterval    = 1 * time.Hour
	schedulerRunTimeout      = 2 * time.Minute
)

type sessionCloser interface {
	CloseStaleSessions(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type anomalyDetector interface {
	Detect(ctx context.Context, start, end *time.Time) ([]models.Anomaly, error)
}

type adminLister interface {
	ListByRole(ctx context.Context, role string, userID *uuid.UUID) ([]*models.UserProfile, error)
}

type digestMailer interface {
	SendAnomalyDigestEmail(to, name string, counts map[string]int, total int) error
}

type jobState interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
}

type SchedulerConfig struct {
	SessionMaxAge  time.Duration
	DigestInterval time.Duration
}

// Scheduler runs the stale-session sweeper and the anomaly digest on an hourly poll.
type Scheduler struct {
	sessions sessionCloser
	detector anomalyDetector
	admins   adminLister
	mailer   digestMailer
	state    jobState
	cfg      SchedulerConfig
	log      *logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(sessions sessionCloser, detector anomalyDetector, admins adminLister, mailer digestMailer, state jobState, cfg SchedulerConfig, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{
		sessions: sessions,
		detector: detector,
		admins:   admins,
		mailer:   mailer,
		state:    state,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	if s.sessions != nil && s.cfg.SessionMaxAge > 0 {
		s.wg.Add(1)
		go s.loop("session_sweeper", func(ctx context.Context, now time.Time) {
			s.sweepSessions(ctx, now)
		})
	}
	if s.detector != nil && s.admins != nil && s.mailer != nil && s.cfg.DigestInterval > 0 {
		s.wg.Add(1)
		go s.loop("anomaly_digest", func(ctx context.Context, now time.Time) {
			s.sendAnomalyDigest(ctx, now)
		})
	}

	s.log.Info("scheduler started")
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Scheduler) loop(name string, runFn func(ctx context.Context, now time.Time)) {
	defer s.wg.Done()

	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), schedulerRunTimeout)
		defer cancel()
		start := time.Now()
		runFn(ctx, start.UTC())
		jobRuns.WithLabelValues(name).Inc()
		s.log.WithJob(name).WithField("duration", time.Since(start).String()).Debug("job run finished")
	}

	// Run on startup as well as by interval.
	run()

	ticker := time.NewTicker(schedulerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			run()
		}
	}
}

func (s *Scheduler) sweepSessions(ctx context.Context, now time.Time) {
	closed, err := s.sessions.CloseStaleSessions(ctx, now.Add(-s.cfg.SessionMaxAge), now)
	if err != nil {
		s.log.WithJob("session_sweeper").WithError(err).Error("failed to close stale sessions")
		return
	}
	if closed > 0 {
		staleSessionsClosed.Add(float64(closed))
		s.log.WithJob("session_sweeper").WithField("closed", closed).Info("closed stale sessions")
	}
}

func (s *Scheduler) sendAnomalyDigest(ctx context.Context, now time.Time) {
	entry := s.log.WithJob("anomaly_digest")

	if s.state != nil {
		lastSent, err := s.state.GetString(ctx, anomalyDigestLastSentKey)
		if err != nil {
			entry.WithError(err).Warn("failed to read last digest time")
		}
		if !shouldSendByLastSent(lastSent, s.cfg.DigestInterval, now) {
			return
		}
	}

	anomalies, err := s.detector.Detect(ctx, nil, nil)
	if err != nil {
		entry.WithError(err).Error("anomaly detection failed")
		return
	}
	if len(anomalies) == 0 {
		return
	}

	counts := make(map[string]int)
	for _, a := range anomalies {
		counts[a.Type]++
	}

	admins, err := s.admins.ListByRole(ctx, models.RoleAdmin, nil)
	if err != nil {
		entry.WithError(err).Error("failed to list admins")
		return
	}

	sent := 0
	for _, admin := range admins {
		if !admin.IsActive {
			continue
		}
		if err := s.mailer.SendAnomalyDigestEmail(admin.Email, admin.DisplayName(), counts, len(anomalies)); err != nil {
			entry.WithError(err).WithField("to", admin.Email).Warn("failed to send digest")
			continue
		}
		sent++
	}
	if sent == 0 {
		return
	}

	if s.state != nil {
		if err := s.state.SetString(ctx, anomalyDigestLastSentKey, now.Format(time.RFC3339)); err != nil {
			entry.WithError(err).Warn("failed to persist last digest time")
		}
	}
	entry.WithField("recipients", sent).WithField("anomalies", len(anomalies)).Info("anomaly digest sent")
}

func shouldSendByLastSent(lastSentRaw string, minInterval time.Duration, now time.Time) bool {
	if lastSentRaw == "" {
		return true
	}

	lastSentAt, err := time.Parse(time.RFC3339, lastSentRaw)
	if err != nil {
		return true
	}

	return now.Sub(lastSentAt) >= minInterval
}
