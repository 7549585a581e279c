package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"callinsight-backend/internal/models"
)

type memoryAnalysisStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]models.AnalysisRecord
	order   []uuid.UUID
}

func newMemoryAnalysisStore() *memoryAnalysisStore {
	return &memoryAnalysisStore{records: make(map[uuid.UUID]models.AnalysisRecord)}
}

func (m *memoryAnalysisStore) Create(ctx context.Context, a *models.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.records[a.ID] = *a
	m.order = append(m.order, a.ID)
	return nil
}

func (m *memoryAnalysisStore) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (m *memoryAnalysisStore) List(ctx context.Context, f models.AnalysisFilter) ([]*models.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AnalysisRecord
	for _, id := range m.order {
		a, ok := m.records[id]
		if !ok {
			continue
		}
		if f.CustomerID != nil && (a.CustomerID == nil || *a.CustomerID != *f.CustomerID) {
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

func (m *memoryAnalysisStore) Replace(ctx context.Context, a *models.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.records[a.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	a.CreatedBy = prev.CreatedBy
	a.CreatedAt = prev.CreatedAt
	a.UpdatedAt = time.Now()
	m.records[a.ID] = *a
	return nil
}

func (m *memoryAnalysisStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.records, id)
	return nil
}

func (m *memoryAnalysisStore) BatchDelete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryAnalysisStore) BatchUpdate(ctx context.Context, ids []uuid.UUID, f models.BatchFields) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		a, ok := m.records[id]
		if !ok {
			continue
		}
		if f.SalespersonName != nil {
			a.SalespersonName = f.SalespersonName
		}
		if f.Tags != nil {
			a.Tags = f.Tags
		}
		if f.Score != nil {
			a.Score = f.Score
		}
		if f.CustomerName != nil {
			a.CustomerName = f.CustomerName
		}
		m.records[id] = a
		n++
	}
	return n, nil
}

func (m *memoryAnalysisStore) ListForStats(ctx context.Context) ([]*models.AnalysisRecord, error) {
	return m.List(ctx, models.AnalysisFilter{})
}

func validAnalysisInput() models.AnalysisInput {
	return models.AnalysisInput{
		PerformanceAnalysis:    "Strong opening",
		HighlightsImprovements: "Good rapport",
		ImprovementSuggestions: "Ask for the close",
		ScoreTags:              "82 / closing",
	}
}

func TestAnalysisService_CreateValidation(t *testing.T) {
	svc := NewAnalysisService(newMemoryAnalysisStore())

	in := validAnalysisInput()
	in.ScoreTags = "   "
	in.Score = intPtr(101)

	_, err := svc.Create(context.Background(), nil, in)
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields["score_tags"] == "" || verr.Fields["score"] == "" {
		t.Fatalf("expected score_tags and score errors, got %v", verr.Fields)
	}
}

func TestAnalysisService_CreateDefaults(t *testing.T) {
	svc := NewAnalysisService(newMemoryAnalysisStore())
	caller := &models.Caller{ID: uuid.New()}

	a, err := svc.Create(context.Background(), caller, validAnalysisInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AnalyzedBy != "manual" {
		t.Fatalf("expected analyzed_by manual, got %q", a.AnalyzedBy)
	}
	if a.AnalysisText == nil || *a.AnalysisText == "" {
		t.Fatalf("expected analysis_text derived from sections")
	}
	if a.CreatedBy == nil || *a.CreatedBy != caller.ID {
		t.Fatalf("expected created_by to be the caller")
	}
}

func TestAnalysisService_UpdateNullsOmittedOptionals(t *testing.T) {
	svc := NewAnalysisService(newMemoryAnalysisStore())
	ctx := context.Background()

	in := validAnalysisInput()
	in.Notes = strPtr("x")
	in.Score = intPtr(70)
	created, err := svc.Create(ctx, nil, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Update(ctx, created.ID, validAnalysisInput()); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Notes != nil {
		t.Fatalf("expected notes to be null after update, got %q", *got.Notes)
	}
	if got.Score != nil {
		t.Fatalf("expected score to be null after update, got %d", *got.Score)
	}
}

func TestAnalysisService_NotFound(t *testing.T) {
	svc := NewAnalysisService(newMemoryAnalysisStore())
	ctx := context.Background()

	if _, err := svc.Get(ctx, uuid.New()); !isNotFound(err) {
		t.Fatalf("expected not found on get, got %v", err)
	}
	if _, err := svc.Update(ctx, uuid.New(), validAnalysisInput()); !isNotFound(err) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if err := svc.Delete(ctx, uuid.New()); !isNotFound(err) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func isNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

func TestFilterByTags(t *testing.T) {
	withA := &models.AnalysisRecord{ID: uuid.New(), Tags: []string{"a", "x"}}
	withB := &models.AnalysisRecord{ID: uuid.New(), Tags: []string{"b"}}
	withBoth := &models.AnalysisRecord{ID: uuid.New(), Tags: []string{"b", "a"}}
	neither := &models.AnalysisRecord{ID: uuid.New(), Tags: []string{"c"}}
	untagged := &models.AnalysisRecord{ID: uuid.New()}
	records := []*models.AnalysisRecord{withA, withB, withBoth, neither, untagged}

	got := FilterByTags(records, []string{"a", "b"})
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(got))
	}
	for _, r := range got {
		if r == neither || r == untagged {
			t.Fatalf("record without a or b should be excluded")
		}
	}

	if all := FilterByTags(records, []string{" ", ""}); len(all) != len(records) {
		t.Fatalf("expected blank filter to keep everything")
	}
}

func TestAnalysisService_Batch(t *testing.T) {
	store := newMemoryAnalysisStore()
	svc := NewAnalysisService(store)
	ctx := context.Background()

	a, _ := svc.Create(ctx, nil, validAnalysisInput())
	b, _ := svc.Create(ctx, nil, validAnalysisInput())

	if _, err := svc.Batch(ctx, models.BatchRequest{Action: "archive", IDs: []uuid.UUID{a.ID}}); err == nil {
		t.Fatalf("expected unknown action to fail validation")
	}
	if _, err := svc.Batch(ctx, models.BatchRequest{Action: "delete"}); err == nil {
		t.Fatalf("expected empty ids to fail validation")
	}

	n, err := svc.Batch(ctx, models.BatchRequest{
		Action: "update",
		IDs:    []uuid.UUID{a.ID, b.ID},
		Fields: &models.BatchFields{SalespersonName: strPtr("Dana")},
	})
	if err != nil || n != 2 {
		t.Fatalf("expected 2 updated rows, got %d (%v)", n, err)
	}
	got, _ := svc.Get(ctx, a.ID)
	if got.SalespersonName == nil || *got.SalespersonName != "Dana" {
		t.Fatalf("expected salesperson to be updated")
	}
	if got.PerformanceAnalysis != "Strong opening" {
		t.Fatalf("batch update must leave other fields untouched")
	}

	n, err = svc.Batch(ctx, models.BatchRequest{Action: "delete", IDs: []uuid.UUID{a.ID}})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deleted row, got %d (%v)", n, err)
	}
}

func TestComputeAnalysisStats(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []*models.AnalysisRecord{
		{SalespersonName: strPtr("Dana"), Score: intPtr(90), Tags: []string{"closing"}, CreatedAt: now.AddDate(0, 0, -1)},
		{SalespersonName: strPtr("Dana"), Score: intPtr(75), Tags: []string{"closing", "pricing"}, CreatedAt: now.AddDate(0, 0, -10)},
		{SalespersonName: strPtr(" "), Score: intPtr(20), CreatedAt: now.AddDate(0, 0, -40)},
		{Tags: []string{"pricing"}, CreatedAt: now.AddDate(0, 0, -2)},
	}

	stats := ComputeAnalysisStats(records, now)

	if stats.Total != 4 {
		t.Fatalf("expected total 4, got %d", stats.Total)
	}
	if stats.AverageScore != 61.67 {
		t.Fatalf("expected average 61.67, got %v", stats.AverageScore)
	}
	want := map[string]int{"0-20": 1, "21-40": 0, "41-60": 0, "61-80": 1, "81-100": 1}
	for k, v := range want {
		if stats.ScoreDistribution[k] != v {
			t.Fatalf("bucket %s: expected %d, got %d", k, v, stats.ScoreDistribution[k])
		}
	}
	if d := stats.SalespersonStats["Dana"]; d.Count != 2 || d.AvgScore != 82.5 {
		t.Fatalf("unexpected Dana stats %+v", d)
	}
	if u := stats.SalespersonStats["unassigned"]; u.Count != 2 || u.AvgScore != 20 {
		t.Fatalf("unexpected unassigned stats %+v", u)
	}
	if stats.TagStats["closing"] != 2 || stats.TagStats["pricing"] != 2 {
		t.Fatalf("unexpected tag stats %v", stats.TagStats)
	}
	if stats.RecentCount != 2 || stats.Recent30Count != 3 {
		t.Fatalf("expected recent 2 / 30-day 3, got %d / %d", stats.RecentCount, stats.Recent30Count)
	}
}
