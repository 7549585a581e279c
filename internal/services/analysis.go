package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"callinsight-backend/internal/models"
)

const (
	defaultAnalysisLimit = 1000
	analysisExportLimit  = 10000
	unassignedLabel      = "unassigned"
)

var scoreBuckets = []struct {
	label    string
	min, max int
}{
	{"0-20", 0, 20},
	{"21-40", 21, 40},
	{"41-60", 41, 60},
	{"61-80", 61, 80},
	{"81-100", 81, 100},
}

type analysisStore interface {
	Create(ctx context.Context, a *models.AnalysisRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error)
	List(ctx context.Context, f models.AnalysisFilter) ([]*models.AnalysisRecord, error)
	Replace(ctx context.Context, a *models.AnalysisRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	BatchDelete(ctx context.Context, ids []uuid.UUID) (int64, error)
	BatchUpdate(ctx context.Context, ids []uuid.UUID, f models.BatchFields) (int64, error)
	ListForStats(ctx context.Context) ([]*models.AnalysisRecord, error)
}

type AnalysisService struct {
	store analysisStore
	now   func() time.Time
}

func NewAnalysisService(store analysisStore) *AnalysisService {
	return &AnalysisService{store: store, now: time.Now}
}

func validateScore(score *int, fields map[string]string) {
	if score != nil && (*score < 0 || *score > 100) {
		fields["score"] = "score must be between 0 and 100"
	}
}

func validateAnalysisInput(in *models.AnalysisInput) error {
	fields := make(map[string]string)
	required := []struct {
		name  string
		value *string
	}{
		{"performance_analysis", &in.PerformanceAnalysis},
		{"highlights_improvements", &in.HighlightsImprovements},
		{"improvement_suggestions", &in.ImprovementSuggestions},
		{"score_tags", &in.ScoreTags},
	}
	for _, r := range required {
		*r.value = strings.TrimSpace(*r.value)
		if *r.value == "" {
			fields[r.name] = r.name + " is required"
		}
	}
	validateScore(in.Score, fields)
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// composeAnalysisText joins the four sections into the legacy free-text column.
func composeAnalysisText(in *models.AnalysisInput) string {
	sections := []struct{ title, body string }{
		{"Performance Analysis", in.PerformanceAnalysis},
		{"Highlights & Improvements", in.HighlightsImprovements},
		{"Improvement Suggestions", in.ImprovementSuggestions},
		{"Score & Tags", in.ScoreTags},
	}
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		parts = append(parts, "## "+s.title+"\n"+s.body)
	}
	return strings.Join(parts, "\n\n")
}

func applyAnalysisInput(a *models.AnalysisRecord, in *models.AnalysisInput) {
	a.CustomerID = in.CustomerID
	a.RecordingID = in.RecordingID
	a.CustomerName = in.CustomerName
	a.SalespersonName = in.SalespersonName
	a.PerformanceAnalysis = in.PerformanceAnalysis
	a.HighlightsImprovements = in.HighlightsImprovements
	a.ImprovementSuggestions = in.ImprovementSuggestions
	a.ScoreTags = in.ScoreTags
	a.AnalysisJSON = in.AnalysisJSON
	a.Transcript = in.Transcript
	a.CustomerProfile = in.CustomerProfile
	a.Notes = in.Notes
	a.Tags = in.Tags
	a.Score = in.Score
	a.RecordingFileURL = in.RecordingFileURL

	if in.AnalysisText != nil && strings.TrimSpace(*in.AnalysisText) != "" {
		a.AnalysisText = in.AnalysisText
	} else {
		text := composeAnalysisText(in)
		a.AnalysisText = &text
	}
	a.AnalyzedBy = "manual"
	if in.AnalyzedBy != nil && strings.TrimSpace(*in.AnalyzedBy) != "" {
		a.AnalyzedBy = strings.TrimSpace(*in.AnalyzedBy)
	}
}

func analysisNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: "Analysis not found"}
	}
	return err
}

func (s *AnalysisService) Create(ctx context.Context, caller *models.Caller, in models.AnalysisInput) (*models.AnalysisRecord, error) {
	if err := validateAnalysisInput(&in); err != nil {
		return nil, err
	}
	a := &models.AnalysisRecord{}
	applyAnalysisInput(a, &in)
	if caller != nil {
		id := caller.ID
		a.CreatedBy = &id
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create analysis: %w", err)
	}
	return a, nil
}

func (s *AnalysisService) Get(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, analysisNotFound(err)
	}
	return a, nil
}

// List runs the column filters in the store, then keeps records whose tags
// intersect f.Tags.
func (s *AnalysisService) List(ctx context.Context, f models.AnalysisFilter) ([]*models.AnalysisRecord, error) {
	if f.Limit <= 0 {
		f.Limit = defaultAnalysisLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.ScoreMin != nil && f.ScoreMax != nil && *f.ScoreMin > *f.ScoreMax {
		return nil, fieldError("score_min", "score_min must not exceed score_max")
	}
	records, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return FilterByTags(records, f.Tags), nil
}

// FilterByTags keeps every record carrying at least one wanted tag. An empty
// wanted set keeps everything.
func FilterByTags(records []*models.AnalysisRecord, wanted []string) []*models.AnalysisRecord {
	want := make(map[string]bool, len(wanted))
	for _, t := range wanted {
		if t = strings.TrimSpace(t); t != "" {
			want[t] = true
		}
	}
	if len(want) == 0 {
		if records == nil {
			return []*models.AnalysisRecord{}
		}
		return records
	}
	out := make([]*models.AnalysisRecord, 0, len(records))
	for _, r := range records {
		for _, t := range r.Tags {
			if want[t] {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Update replaces every writable field; optionals missing from in become null.
func (s *AnalysisService) Update(ctx context.Context, id uuid.UUID, in models.AnalysisInput) (*models.AnalysisRecord, error) {
	if err := validateAnalysisInput(&in); err != nil {
		return nil, err
	}
	a := &models.AnalysisRecord{ID: id}
	applyAnalysisInput(a, &in)
	if err := s.store.Replace(ctx, a); err != nil {
		return nil, analysisNotFound(err)
	}
	return a, nil
}

func (s *AnalysisService) Delete(ctx context.Context, id uuid.UUID) error {
	return analysisNotFound(s.store.Delete(ctx, id))
}

// Batch applies one delete or partial update to every listed id and reports
// how many rows changed.
func (s *AnalysisService) Batch(ctx context.Context, req models.BatchRequest) (int64, error) {
	fields := make(map[string]string)
	if len(req.IDs) == 0 {
		fields["ids"] = "ids must not be empty"
	}
	switch req.Action {
	case "delete":
	case "update":
		if req.Fields == nil {
			fields["fields"] = "fields are required for update"
		} else {
			validateScore(req.Fields.Score, fields)
		}
	default:
		fields["action"] = "action must be delete or update"
	}
	if len(fields) > 0 {
		return 0, &ValidationError{Fields: fields}
	}

	if req.Action == "delete" {
		return s.store.BatchDelete(ctx, req.IDs)
	}
	return s.store.BatchUpdate(ctx, req.IDs, *req.Fields)
}

func (s *AnalysisService) ExportRows(ctx context.Context, f models.AnalysisFilter) ([]*models.AnalysisRecord, error) {
	f.Limit = analysisExportLimit
	f.Offset = 0
	return s.List(ctx, f)
}

func (s *AnalysisService) Stats(ctx context.Context) (*models.AnalysisStats, error) {
	records, err := s.store.ListForStats(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeAnalysisStats(records, s.now()), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeAnalysisStats summarises scores, salespeople and tags. Records
// without a score count toward totals but not toward averages.
func ComputeAnalysisStats(records []*models.AnalysisRecord, now time.Time) *models.AnalysisStats {
	stats := &models.AnalysisStats{
		Total:             len(records),
		ScoreDistribution: make(map[string]int, len(scoreBuckets)),
		SalespersonStats:  make(map[string]models.SalespersonStat),
		TagStats:          make(map[string]int),
	}
	for _, b := range scoreBuckets {
		stats.ScoreDistribution[b.label] = 0
	}

	type acc struct {
		count, scored, sum int
	}
	people := make(map[string]*acc)
	scoreSum, scored := 0, 0
	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, 0, -30)

	for _, r := range records {
		name := unassignedLabel
		if r.SalespersonName != nil && strings.TrimSpace(*r.SalespersonName) != "" {
			name = strings.TrimSpace(*r.SalespersonName)
		}
		p, ok := people[name]
		if !ok {
			p = &acc{}
			people[name] = p
		}
		p.count++

		if r.Score != nil {
			scoreSum += *r.Score
			scored++
			p.sum += *r.Score
			p.scored++
			for _, b := range scoreBuckets {
				if *r.Score >= b.min && *r.Score <= b.max {
					stats.ScoreDistribution[b.label]++
					break
				}
			}
		}

		for _, t := range r.Tags {
			stats.TagStats[t]++
		}
		if !r.CreatedAt.Before(weekAgo) {
			stats.RecentCount++
		}
		if !r.CreatedAt.Before(monthAgo) {
			stats.Recent30Count++
		}
	}

	if scored > 0 {
		stats.AverageScore = round2(float64(scoreSum) / float64(scored))
	}
	for name, p := range people {
		st := models.SalespersonStat{Count: p.count}
		if p.scored > 0 {
			st.AvgScore = round2(float64(p.sum) / float64(p.scored))
		}
		stats.SalespersonStats[name] = st
	}
	return stats
}
