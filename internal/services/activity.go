package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/models"
)

const (
	activityWriteAttempts = 3
	activityRetryStep     = 250 * time.Millisecond
	idempotencyTTL        = 24 * time.Hour
	activityExportLimit   = 10000
)

// ErrDuplicateActivity is returned when an Idempotency-Key was already used.
var ErrDuplicateActivity = errors.New("activity already recorded for this idempotency key")

type activityStore interface {
	Record(ctx context.Context, e *models.ActivityLogEntry, session *models.LoginSession) error
	List(ctx context.Context, f models.ActivityFilter) ([]models.ActivityView, int, error)
}

type idempotencyStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

type ActivityService struct {
	store     activityStore
	idem      idempotencyStore
	log       *logger.Logger
	now       func() time.Time
	retryStep time.Duration
}

func NewActivityService(store activityStore, idem idempotencyStore, log *logger.Logger) *ActivityService {
	if log == nil {
		log = logger.Discard()
	}
	return &ActivityService{
		store:     store,
		idem:      idem,
		log:       log,
		now:       time.Now,
		retryStep: activityRetryStep,
	}
}

// WithClock replaces the time source stamped on new entries.
func (s *ActivityService) WithClock(now func() time.Time) *ActivityService {
	s.now = now
	return s
}

type RecordInput struct {
	models.RecordActivityRequest
	IPAddress       string
	HeaderUserAgent string
	IdempotencyKey  string
}

func validateRecordInput(in RecordInput) error {
	fields := make(map[string]string)
	if in.ActivityType == "" {
		fields["activity_type"] = "activity_type is required"
	} else if !models.ValidActivityType(in.ActivityType) {
		fields["activity_type"] = "activity_type must be login, logout, page_view, or action"
	}
	if meta := bytes.TrimSpace(in.Metadata); len(meta) > 0 && !bytes.Equal(meta, []byte("null")) {
		if !json.Valid(meta) || meta[0] != '{' {
			fields["metadata"] = "metadata must be a JSON object"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Record appends one activity entry for the caller. The actor is always the
// caller; the write and its session/profile side effects commit together and
// the whole transaction is retried with linearly increasing waits.
func (s *ActivityService) Record(ctx context.Context, caller *models.Caller, in RecordInput) (*models.ActivityLogEntry, error) {
	if caller == nil {
		return nil, &UnauthorizedError{Message: "Authentication required"}
	}
	if err := validateRecordInput(in); err != nil {
		return nil, err
	}

	idemKey := ""
	if in.IdempotencyKey != "" && s.idem != nil {
		idemKey = fmt.Sprintf("activity:%s:%s", caller.ID, in.IdempotencyKey)
		claimed, err := s.idem.Claim(ctx, idemKey, idempotencyTTL)
		if err != nil {
			s.log.WithError(err).Warn("idempotency claim failed, recording anyway")
			idemKey = ""
		} else if !claimed {
			return nil, ErrDuplicateActivity
		}
	}

	now := s.now().UTC()
	ip := in.IPAddress
	if ip == "" {
		ip = "unknown"
	}
	userAgent := in.HeaderUserAgent
	if in.UserAgent != nil && *in.UserAgent != "" {
		userAgent = *in.UserAgent
	}
	metadata := in.Metadata
	if meta := bytes.TrimSpace(metadata); len(meta) == 0 || bytes.Equal(meta, []byte("null")) {
		metadata = json.RawMessage("{}")
	}

	e := &models.ActivityLogEntry{
		ID:           uuid.New(),
		UserID:       caller.ID,
		ActivityType: in.ActivityType,
		PagePath:     in.PagePath,
		Action:       in.Action,
		Metadata:     metadata,
		IPAddress:    ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
	}

	var session *models.LoginSession
	if e.ActivityType == models.ActivityLogin {
		session = &models.LoginSession{
			ID:        uuid.New(),
			UserID:    caller.ID,
			LoginAt:   now,
			IPAddress: ip,
			UserAgent: userAgent,
			IsActive:  true,
		}
	}

	op := func() error {
		err := s.store.Record(ctx, e, session)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: s.retryStep}, activityWriteAttempts-1), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		activityWriteRetries.Inc()
		s.log.WithError(err).WithField("activity_type", e.ActivityType).
			Warnf("activity write failed, retrying in %s", wait)
	})
	if err != nil {
		if idemKey != "" {
			if relErr := s.idem.Release(context.WithoutCancel(ctx), idemKey); relErr != nil {
				s.log.WithError(relErr).Warn("failed to release idempotency key")
			}
		}
		return nil, fmt.Errorf("record activity: %w", err)
	}

	activitiesRecorded.WithLabelValues(e.ActivityType).Inc()
	return e, nil
}

func (s *ActivityService) List(ctx context.Context, f models.ActivityFilter) ([]models.ActivityView, int, error) {
	if f.ActivityType != "" && !models.ValidActivityType(f.ActivityType) {
		return nil, 0, fieldError("activity_type", "activity_type must be login, logout, page_view, or action")
	}
	if f.Start != nil && f.End != nil && f.Start.After(*f.End) {
		return nil, 0, fieldError("start_date", "start_date must be before end_date")
	}
	return s.store.List(ctx, f)
}

// ExportRows loads the filtered list for export, capped at activityExportLimit rows.
func (s *ActivityService) ExportRows(ctx context.Context, f models.ActivityFilter) ([]models.ActivityView, error) {
	f.Limit = activityExportLimit
	f.Offset = 0
	views, _, err := s.List(ctx, f)
	return views, err
}
