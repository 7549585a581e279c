package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callinsight-backend/internal/models"
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

const profileColumns = `id, email, name, role, is_active, last_login_at, last_activity_at, created_at, updated_at`

func scanProfile(row rowScanner) (*models.UserProfile, error) {
	p := &models.UserProfile{}
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Role, &p.IsActive,
		&p.LastLoginAt, &p.LastActivityAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	return scanProfile(r.pool.QueryRow(ctx, "SELECT "+profileColumns+" FROM user_profiles WHERE id = $1", id))
}

// GetByIDs looks up several profiles at once; ids without a profile are absent from the map.
func (r *ProfileRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.UserProfile, error) {
	out := make(map[uuid.UUID]*models.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	rows, err := r.pool.Query(ctx, "SELECT "+profileColumns+" FROM user_profiles WHERE id = ANY($1::uuid[])", strIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *ProfileRepo) List(ctx context.Context, f models.UserFilter) ([]*models.UserProfile, int, error) {
	var args []interface{}
	argIdx := 1
	where := "WHERE 1=1"

	if f.Role != "" {
		where += fmt.Sprintf(" AND role = $%d", argIdx)
		args = append(args, f.Role)
		argIdx++
	}
	if f.IsActive != nil {
		where += fmt.Sprintf(" AND is_active = $%d", argIdx)
		args = append(args, *f.IsActive)
		argIdx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (email ILIKE $%d OR name ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+f.Search+"%")
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM user_profiles "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM user_profiles %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		profileColumns, where, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var profiles []*models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		profiles = append(profiles, p)
	}
	return profiles, total, rows.Err()
}

// ListByRole returns every profile with role, newest first, optionally narrowed to one user.
func (r *ProfileRepo) ListByRole(ctx context.Context, role string, userID *uuid.UUID) ([]*models.UserProfile, error) {
	query := "SELECT " + profileColumns + " FROM user_profiles WHERE role = $1"
	args := []interface{}{role}
	if userID != nil {
		query += " AND id = $2"
		args = append(args, *userID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (r *ProfileRepo) Upsert(ctx context.Context, p *models.UserProfile) error {
	query := `
		INSERT INTO user_profiles (id, email, name, role, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role,
		    is_active = EXCLUDED.is_active, updated_at = NOW()
		RETURNING created_at, updated_at, last_login_at, last_activity_at`

	return r.pool.QueryRow(ctx, query, p.ID, p.Email, p.Name, p.Role, p.IsActive).
		Scan(&p.CreatedAt, &p.UpdatedAt, &p.LastLoginAt, &p.LastActivityAt)
}

// Update applies only the fields present in req.
func (r *ProfileRepo) Update(ctx context.Context, id uuid.UUID, req models.UpdateUserRequest) (*models.UserProfile, error) {
	query := `
		UPDATE user_profiles SET
			email = COALESCE($2, email),
			name = COALESCE($3, name),
			role = COALESCE($4, role),
			is_active = COALESCE($5, is_active),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	return scanProfile(r.pool.QueryRow(ctx, query, id, req.Email, req.Name, req.Role, req.IsActive))
}

func (r *ProfileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM user_profiles WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
