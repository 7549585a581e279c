package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"callinsight-backend/internal/models"
)

const (
	ExportCSV  = "csv"
	ExportJSON = "json"
	ExportXLSX = "xlsx"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExportTable is a header row plus string cells, shared by every export format.
type ExportTable struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

func ParseExportFormat(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportJSON:
		return ExportJSON, nil
	case ExportXLSX:
		return ExportXLSX, nil
	}
	return "", fieldError("format", "format must be csv, json, or xlsx")
}

func ExportContentType(format string) string {
	switch format {
	case ExportJSON:
		return "application/json; charset=utf-8"
	case ExportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// WriteCSV emits a UTF-8 BOM so spreadsheet apps detect the encoding, then RFC 4180 rows.
func WriteCSV(w io.Writer, t ExportTable) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func WriteXLSX(w io.Writer, t ExportTable) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Export"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := toCells(t.Headers)
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		cells := toCells(row)
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return f.Write(w)
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func AnalysisTable(records []*models.AnalysisRecord) ExportTable {
	t := ExportTable{
		Sheet: "Analyses",
		Headers: []string{
			"id", "created_at", "customer_name", "salesperson_name", "score", "tags",
			"performance_analysis", "highlights_improvements", "improvement_suggestions", "score_tags",
			"notes", "recording_file_url", "analyzed_by",
		},
	}
	for _, r := range records {
		score := ""
		if r.Score != nil {
			score = strconv.Itoa(*r.Score)
		}
		t.Rows = append(t.Rows, []string{
			r.ID.String(),
			formatTime(&r.CreatedAt),
			deref(r.CustomerName),
			deref(r.SalespersonName),
			score,
			strings.Join(r.Tags, ", "),
			r.PerformanceAnalysis,
			r.HighlightsImprovements,
			r.ImprovementSuggestions,
			r.ScoreTags,
			deref(r.Notes),
			deref(r.RecordingFileURL),
			r.AnalyzedBy,
		})
	}
	return t
}

func ActivityTable(views []models.ActivityView) ExportTable {
	t := ExportTable{
		Sheet: "Activity",
		Headers: []string{
			"id", "created_at", "user_email", "user_name", "activity_type", "page_path", "action",
			"ip_address", "user_agent", "metadata",
		},
	}
	for _, v := range views {
		t.Rows = append(t.Rows, []string{
			v.ID.String(),
			formatTime(&v.CreatedAt),
			deref(v.UserEmail),
			deref(v.UserName),
			v.ActivityType,
			deref(v.PagePath),
			deref(v.Action),
			v.IPAddress,
			v.UserAgent,
			string(v.Metadata),
		})
	}
	return t
}
