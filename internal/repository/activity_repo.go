package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"callinsight-backend/internal/models"
	"callinsight-backend/internal/tracing"
)

type ActivityRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool, tracer: tracing.Tracer("repository.activity")}
}

const activityColumns = `a.id, a.user_id, a.activity_type, a.page_path, a.action, a.metadata, a.ip_address, a.user_agent, a.created_at`

// Record writes one activity entry together with its session ledger and profile
// timestamp side effects in a single transaction.
func (r *ActivityRepo) Record(ctx context.Context, e *models.ActivityLogEntry, session *models.LoginSession) (err error) {
	ctx, span := r.tracer.Start(ctx, "ActivityRepo.Record",
		trace.WithAttributes(attribute.String("activity.type", e.ActivityType)))
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin activity transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	switch e.ActivityType {
	case models.ActivityLogin:
		if session == nil {
			return fmt.Errorf("login activity requires a session")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO login_sessions (id, user_id, login_at, ip_address, user_agent, is_active)
			 VALUES ($1, $2, $3, $4, $5, TRUE)`,
			session.ID, session.UserID, session.LoginAt, session.IPAddress, session.UserAgent,
		)
		if err != nil {
			return fmt.Errorf("insert login session: %w", err)
		}
	case models.ActivityLogout:
		_, err = tx.Exec(ctx,
			`UPDATE login_sessions SET is_active = FALSE, logout_at = $2
			 WHERE id = (
				SELECT id FROM login_sessions
				WHERE user_id = $1 AND is_active = TRUE
				ORDER BY login_at DESC LIMIT 1
			 )`,
			e.UserID, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("close login session: %w", err)
		}
	}

	if err = insertActivity(ctx, tx, e); err != nil {
		return err
	}

	if e.ActivityType == models.ActivityLogin {
		_, err = tx.Exec(ctx,
			"UPDATE user_profiles SET last_login_at = $2, last_activity_at = $2, updated_at = NOW() WHERE id = $1",
			e.UserID, e.CreatedAt)
	} else {
		_, err = tx.Exec(ctx,
			"UPDATE user_profiles SET last_activity_at = $2, updated_at = NOW() WHERE id = $1",
			e.UserID, e.CreatedAt)
	}
	if err != nil {
		return fmt.Errorf("update profile timestamps: %w", err)
	}

	return tx.Commit(ctx)
}

func insertActivity(ctx context.Context, tx pgx.Tx, e *models.ActivityLogEntry) error {
	metadata := "{}"
	if len(e.Metadata) > 0 {
		metadata = string(e.Metadata)
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO user_activity_logs (id, user_id, activity_type, page_path, action, metadata, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.UserID, e.ActivityType, e.PagePath, e.Action, metadata, e.IPAddress, e.UserAgent, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *ActivityRepo) List(ctx context.Context, f models.ActivityFilter) ([]models.ActivityView, int, error) {
	var args []interface{}
	argIdx := 1
	where := "WHERE 1=1"

	if f.UserID != nil {
		where += fmt.Sprintf(" AND a.user_id = $%d", argIdx)
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.ActivityType != "" {
		where += fmt.Sprintf(" AND a.activity_type = $%d", argIdx)
		args = append(args, f.ActivityType)
		argIdx++
	}
	if f.PagePath != "" {
		where += fmt.Sprintf(" AND a.page_path ILIKE $%d", argIdx)
		args = append(args, "%"+f.PagePath+"%")
		argIdx++
	}
	if f.Start != nil {
		where += fmt.Sprintf(" AND a.created_at >= $%d", argIdx)
		args = append(args, *f.Start)
		argIdx++
	}
	if f.End != nil {
		where += fmt.Sprintf(" AND a.created_at <= $%d", argIdx)
		args = append(args, *f.End)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM user_activity_logs a "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy := "a.created_at"
	switch f.SortBy {
	case "activity_type":
		orderBy = "a.activity_type"
	case "page_path":
		orderBy = "a.page_path"
	case "user_id":
		orderBy = "a.user_id"
	}
	if f.SortDesc {
		orderBy += " DESC"
	} else {
		orderBy += " ASC"
	}

	query := fmt.Sprintf(`SELECT %s, p.email, p.name, p.role
		FROM user_activity_logs a
		LEFT JOIN user_profiles p ON p.id = a.user_id
		%s ORDER BY %s, a.id LIMIT $%d OFFSET $%d`,
		activityColumns, where, orderBy, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	views, err := scanActivityViews(rows)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// ListRecent returns the newest entries regardless of any reporting window.
func (r *ActivityRepo) ListRecent(ctx context.Context, limit int) ([]models.ActivityView, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s, p.email, p.name, p.role
		FROM user_activity_logs a
		LEFT JOIN user_profiles p ON p.id = a.user_id
		ORDER BY a.created_at DESC LIMIT $1`, activityColumns), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivityViews(rows)
}

// ListInRange returns entries in [start, end] ordered oldest first. Empty
// activityType and userIDs mean no filter.
func (r *ActivityRepo) ListInRange(ctx context.Context, start, end time.Time, activityType string, userIDs []uuid.UUID) ([]models.ActivityLogEntry, error) {
	args := []interface{}{start, end}
	query := fmt.Sprintf("SELECT %s FROM user_activity_logs a WHERE a.created_at >= $1 AND a.created_at <= $2", activityColumns)

	if activityType != "" {
		args = append(args, activityType)
		query += fmt.Sprintf(" AND a.activity_type = $%d", len(args))
	}
	if len(userIDs) > 0 {
		ids := make([]string, len(userIDs))
		for i, id := range userIDs {
			ids[i] = id.String()
		}
		args = append(args, ids)
		query += fmt.Sprintf(" AND a.user_id = ANY($%d::uuid[])", len(args))
	}
	query += " ORDER BY a.created_at ASC, a.id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ActivityLogEntry
	for rows.Next() {
		var e models.ActivityLogEntry
		if err := scanActivity(rows, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *ActivityRepo) CountSince(ctx context.Context, activityType string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM user_activity_logs WHERE activity_type = $1 AND created_at >= $2",
		activityType, since).Scan(&n)
	return n, err
}

// ListSessions returns sessions whose login_at falls in [start, end], grouped by user and ordered by login time.
func (r *ActivityRepo) ListSessions(ctx context.Context, start, end time.Time) ([]models.LoginSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, login_at, logout_at, ip_address, user_agent, is_active
		 FROM login_sessions
		 WHERE login_at >= $1 AND login_at <= $2
		 ORDER BY user_id, login_at, id`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.LoginSession
	for rows.Next() {
		var s models.LoginSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.LoginAt, &s.LogoutAt, &s.IPAddress, &s.UserAgent, &s.IsActive); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CloseStaleSessions ends sessions still marked active that started before cutoff.
func (r *ActivityRepo) CloseStaleSessions(ctx context.Context, cutoff, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		"UPDATE login_sessions SET is_active = FALSE, logout_at = $2 WHERE is_active = TRUE AND login_at < $1",
		cutoff, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(row rowScanner, e *models.ActivityLogEntry, extra ...interface{}) error {
	dest := []interface{}{
		&e.ID, &e.UserID, &e.ActivityType, &e.PagePath, &e.Action, &e.Metadata,
		&e.IPAddress, &e.UserAgent, &e.CreatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func scanActivityViews(rows pgx.Rows) ([]models.ActivityView, error) {
	var views []models.ActivityView
	for rows.Next() {
		var v models.ActivityView
		if err := scanActivity(rows, &v.ActivityLogEntry, &v.UserEmail, &v.UserName, &v.UserRole); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
