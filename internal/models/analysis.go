package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AnalysisRecord struct {
	ID                     uuid.UUID       `json:"id"`
	CustomerID             *uuid.UUID      `json:"customer_id"`
	RecordingID            *string         `json:"recording_id"`
	CustomerName           *string         `json:"customer_name"`
	SalespersonName        *string         `json:"salesperson_name"`
	PerformanceAnalysis    string          `json:"performance_analysis"`
	HighlightsImprovements string          `json:"highlights_improvements"`
	ImprovementSuggestions string          `json:"improvement_suggestions"`
	ScoreTags              string          `json:"score_tags"`
	AnalysisText           *string         `json:"analysis_text"`
	AnalysisJSON           json.RawMessage `json:"analysis_json"`
	Transcript             *string         `json:"transcript"`
	CustomerProfile        *string         `json:"customer_profile"`
	Notes                  *string         `json:"notes"`
	Tags                   []string        `json:"tags"`
	Score                  *int            `json:"score"`
	RecordingFileURL       *string         `json:"recording_file_url"`
	AnalyzedBy             string          `json:"analyzed_by"`
	CreatedBy              *uuid.UUID      `json:"created_by"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// AnalysisInput carries the full set of writable fields; omitted optionals are written as null.
type AnalysisInput struct {
	CustomerID             *uuid.UUID      `json:"customer_id"`
	RecordingID            *string         `json:"recording_id"`
	CustomerName           *string         `json:"customer_name"`
	SalespersonName        *string         `json:"salesperson_name"`
	PerformanceAnalysis    string          `json:"performance_analysis"`
	HighlightsImprovements string          `json:"highlights_improvements"`
	ImprovementSuggestions string          `json:"improvement_suggestions"`
	ScoreTags              string          `json:"score_tags"`
	AnalysisText           *string         `json:"analysis_text"`
	AnalysisJSON           json.RawMessage `json:"analysis_json"`
	Transcript             *string         `json:"transcript"`
	CustomerProfile        *string         `json:"customer_profile"`
	Notes                  *string         `json:"notes"`
	Tags                   []string        `json:"tags"`
	Score                  *int            `json:"score"`
	RecordingFileURL       *string         `json:"recording_file_url"`
	AnalyzedBy             *string         `json:"analyzed_by"`
}

type AnalysisFilter struct {
	CustomerID      *uuid.UUID
	RecordingID     string
	SalespersonName string
	ScoreMin        *int
	ScoreMax        *int
	Tags            []string
	Limit           int
	Offset          int
}

type BatchFields struct {
	SalespersonName *string  `json:"salesperson_name"`
	Tags            []string `json:"tags"`
	Score           *int     `json:"score"`
	CustomerName    *string  `json:"customer_name"`
}

type BatchRequest struct {
	IDs    []uuid.UUID  `json:"ids"`
	Action string       `json:"action"`
	Fields *BatchFields `json:"fields"`
}

type SalespersonStat struct {
	Count    int     `json:"count"`
	AvgScore float64 `json:"avgScore"`
}

type AnalysisStats struct {
	Total             int                        `json:"total"`
	AverageScore      float64                    `json:"averageScore"`
	ScoreDistribution map[string]int             `json:"scoreDistribution"`
	SalespersonStats  map[string]SalespersonStat `json:"salespersonStats"`
	TagStats          map[string]int             `json:"tagStats"`
	RecentCount       int                        `json:"recentCount"`
	Recent30Count     int                        `json:"recent30Count"`
}
