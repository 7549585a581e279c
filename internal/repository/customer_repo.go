package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callinsight-backend/internal/models"
)

type CustomerRepo struct {
	pool *pgxpool.Pool
}

func NewCustomerRepo(pool *pgxpool.Pool) *CustomerRepo {
	return &CustomerRepo{pool: pool}
}

const customerColumns = `id, display_name, phone, contact_key, source, grade, english_level,
	tags, confidence, notes, last_seen_at, created_at`

func scanCustomer(row rowScanner) (*models.Customer, error) {
	c := &models.Customer{}
	err := row.Scan(&c.ID, &c.DisplayName, &c.Phone, &c.ContactKey, &c.Source, &c.Grade,
		&c.EnglishLevel, &c.Tags, &c.Confidence, &c.Notes, &c.LastSeenAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CustomerRepo) Create(ctx context.Context, c *models.Customer) error {
	c.ID = uuid.New()
	query := `INSERT INTO customers (id, display_name, phone, contact_key, source, grade, english_level,
		tags, confidence, notes, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		c.ID, c.DisplayName, c.Phone, c.ContactKey, c.Source, c.Grade, c.EnglishLevel,
		c.Tags, c.Confidence, c.Notes, c.LastSeenAt,
	).Scan(&c.CreatedAt)
}

func (r *CustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = $1", id))
}

func (r *CustomerRepo) List(ctx context.Context, search string, limit, offset int) ([]*models.Customer, int, error) {
	var args []interface{}
	argIdx := 1
	where := ""

	if search != "" {
		where = fmt.Sprintf("WHERE display_name ILIKE $%d OR phone ILIKE $%d OR contact_key ILIKE $%d", argIdx, argIdx, argIdx)
		args = append(args, "%"+search+"%")
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM customers %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		customerColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *CustomerRepo) Replace(ctx context.Context, c *models.Customer) error {
	query := `UPDATE customers SET display_name = $2, phone = $3, contact_key = $4, source = $5,
		grade = $6, english_level = $7, tags = $8, confidence = $9, notes = $10, last_seen_at = $11
		WHERE id = $1 RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		c.ID, c.DisplayName, c.Phone, c.ContactKey, c.Source, c.Grade, c.EnglishLevel,
		c.Tags, c.Confidence, c.Notes, c.LastSeenAt,
	).Scan(&c.CreatedAt)
}

func (r *CustomerRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM customers WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
