package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callinsight-backend/internal/models"
)

type AnalysisRepo struct {
	pool *pgxpool.Pool
}

func NewAnalysisRepo(pool *pgxpool.Pool) *AnalysisRepo {
	return &AnalysisRepo{pool: pool}
}

const analysisColumns = `id, customer_id, recording_id, customer_name, salesperson_name,
	performance_analysis, highlights_improvements, improvement_suggestions, score_tags,
	analysis_text, analysis_json, transcript, customer_profile, notes, tags, score,
	recording_file_url, analyzed_by, created_by, created_at, updated_at`

func scanAnalysis(row rowScanner) (*models.AnalysisRecord, error) {
	a := &models.AnalysisRecord{}
	err := row.Scan(
		&a.ID, &a.CustomerID, &a.RecordingID, &a.CustomerName, &a.SalespersonName,
		&a.PerformanceAnalysis, &a.HighlightsImprovements, &a.ImprovementSuggestions, &a.ScoreTags,
		&a.AnalysisText, &a.AnalysisJSON, &a.Transcript, &a.CustomerProfile, &a.Notes, &a.Tags, &a.Score,
		&a.RecordingFileURL, &a.AnalyzedBy, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func jsonParam(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *AnalysisRepo) Create(ctx context.Context, a *models.AnalysisRecord) error {
	a.ID = uuid.New()
	query := `INSERT INTO analyses (id, customer_id, recording_id, customer_name, salesperson_name,
		performance_analysis, highlights_improvements, improvement_suggestions, score_tags,
		analysis_text, analysis_json, transcript, customer_profile, notes, tags, score,
		recording_file_url, analyzed_by, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		a.ID, a.CustomerID, a.RecordingID, a.CustomerName, a.SalespersonName,
		a.PerformanceAnalysis, a.HighlightsImprovements, a.ImprovementSuggestions, a.ScoreTags,
		a.AnalysisText, jsonParam(a.AnalysisJSON), a.Transcript, a.CustomerProfile, a.Notes, a.Tags, a.Score,
		a.RecordingFileURL, a.AnalyzedBy, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AnalysisRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error) {
	return scanAnalysis(r.pool.QueryRow(ctx, "SELECT "+analysisColumns+" FROM analyses WHERE id = $1", id))
}

// List applies the column filters; tag matching happens in the caller.
func (r *AnalysisRepo) List(ctx context.Context, f models.AnalysisFilter) ([]*models.AnalysisRecord, error) {
	var args []interface{}
	argIdx := 1
	where := "WHERE 1=1"

	if f.CustomerID != nil {
		where += fmt.Sprintf(" AND customer_id = $%d", argIdx)
		args = append(args, *f.CustomerID)
		argIdx++
	}
	if f.RecordingID != "" {
		where += fmt.Sprintf(" AND recording_id = $%d", argIdx)
		args = append(args, f.RecordingID)
		argIdx++
	}
	if f.SalespersonName != "" {
		where += fmt.Sprintf(" AND salesperson_name ILIKE $%d", argIdx)
		args = append(args, "%"+f.SalespersonName+"%")
		argIdx++
	}
	if f.ScoreMin != nil {
		where += fmt.Sprintf(" AND score >= $%d", argIdx)
		args = append(args, *f.ScoreMin)
		argIdx++
	}
	if f.ScoreMax != nil {
		where += fmt.Sprintf(" AND score <= $%d", argIdx)
		args = append(args, *f.ScoreMax)
		argIdx++
	}

	query := fmt.Sprintf("SELECT %s FROM analyses %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d",
		analysisColumns, where, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AnalysisRecord
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

// Replace overwrites every writable column of an existing record.
func (r *AnalysisRepo) Replace(ctx context.Context, a *models.AnalysisRecord) error {
	query := `UPDATE analyses SET
		customer_id = $2, recording_id = $3, customer_name = $4, salesperson_name = $5,
		performance_analysis = $6, highlights_improvements = $7, improvement_suggestions = $8, score_tags = $9,
		analysis_text = $10, analysis_json = $11, transcript = $12, customer_profile = $13, notes = $14,
		tags = $15, score = $16, recording_file_url = $17, analyzed_by = $18, updated_at = NOW()
		WHERE id = $1
		RETURNING created_by, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		a.ID, a.CustomerID, a.RecordingID, a.CustomerName, a.SalespersonName,
		a.PerformanceAnalysis, a.HighlightsImprovements, a.ImprovementSuggestions, a.ScoreTags,
		a.AnalysisText, jsonParam(a.AnalysisJSON), a.Transcript, a.CustomerProfile, a.Notes,
		a.Tags, a.Score, a.RecordingFileURL, a.AnalyzedBy,
	).Scan(&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
}

func (r *AnalysisRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM analyses WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func idParams(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (r *AnalysisRepo) BatchDelete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM analyses WHERE id = ANY($1::uuid[])", idParams(ids))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BatchUpdate sets only the fields present in f on every listed record.
func (r *AnalysisRepo) BatchUpdate(ctx context.Context, ids []uuid.UUID, f models.BatchFields) (int64, error) {
	var sets []string
	args := []interface{}{idParams(ids)}

	if f.SalespersonName != nil {
		args = append(args, *f.SalespersonName)
		sets = append(sets, fmt.Sprintf("salesperson_name = $%d", len(args)))
	}
	if f.Tags != nil {
		args = append(args, f.Tags)
		sets = append(sets, fmt.Sprintf("tags = $%d", len(args)))
	}
	if f.Score != nil {
		args = append(args, *f.Score)
		sets = append(sets, fmt.Sprintf("score = $%d", len(args)))
	}
	if f.CustomerName != nil {
		args = append(args, *f.CustomerName)
		sets = append(sets, fmt.Sprintf("customer_name = $%d", len(args)))
	}
	if len(sets) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("UPDATE analyses SET %s, updated_at = NOW() WHERE id = ANY($1::uuid[])", strings.Join(sets, ", "))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListForStats loads the columns the statistics summary needs across all records.
func (r *AnalysisRepo) ListForStats(ctx context.Context) ([]*models.AnalysisRecord, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, salesperson_name, tags, score, created_at FROM analyses")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AnalysisRecord
	for rows.Next() {
		a := &models.AnalysisRecord{}
		if err := rows.Scan(&a.ID, &a.SalespersonName, &a.Tags, &a.Score, &a.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
