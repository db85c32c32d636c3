package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"inquest/internal/researchlog"
	"inquest/internal/schema"
	"inquest/pkg/blackboard"
)

// Read-only query surface over an investigation's on-disk artifacts.
// Everything here derives from the exported document and research log;
// none of it is authoritative.

// ExportFilePath returns the exported document path for an investigation.
func ExportFilePath(exportDir, investigationID string) string {
	return filepath.Join(exportDir, investigationID+".json")
}

// GanttRow is one activity rendered for a Gantt-style timeline view.
type GanttRow struct {
	AgentName       string    `json:"agent_name"`
	TaskType        string    `json:"task_type"`
	Status          string    `json:"status"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Activities returns the latest snapshot of every activity for an
// investigation plus derived Gantt rows, replayed from the research log.
func (d *Dashboard) Activities(investigationID string) ([]researchlog.Activity, []GanttRow, error) {
	activities, err := researchlog.ParseFile(researchlog.FilePath(d.researchLogDir, investigationID))
	if err != nil {
		return nil, nil, err
	}

	rows := make([]GanttRow, 0, len(activities))
	for _, activity := range activities {
		row := GanttRow{
			AgentName: activity.AgentName,
			TaskType:  activity.TaskType,
			Status:    string(activity.Status),
			Start:     activity.StartTime,
			End:       activity.EndTime,
		}
		if activity.EndTime.IsZero() {
			row.DurationSeconds = time.Since(activity.StartTime).Seconds()
		} else {
			row.DurationSeconds = activity.DurationSeconds
		}
		rows = append(rows, row)
	}

	return activities, rows, nil
}

// FindingsByArea returns per-area finding counts from the exported document.
func (d *Dashboard) FindingsByArea(investigationID string) (map[string]int, error) {
	_, byArea, err := readExportCounts(ExportFilePath(d.exportDir, investigationID))
	return byArea, err
}

// Questions returns an investigation's guiding questions from its exported
// document, auto-detecting the legacy v1 and versioned v2 document shapes.
// Legacy documents are migrated in memory before the questions are read.
func (d *Dashboard) Questions(investigationID string) ([]blackboard.Question, error) {
	data, err := os.ReadFile(ExportFilePath(d.exportDir, investigationID))
	if err != nil {
		return nil, fmt.Errorf("failed to read exported document: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse exported document: %w", err)
	}

	switch schema.DetectVersion(raw) {
	case schema.Version2:
		doc, err := blackboard.ParseDocument(data)
		if err != nil {
			return nil, err
		}
		return doc.Questions.Items, nil

	case schema.Version1:
		doc, result := schema.MigrateV1ToV2(raw)
		if len(result.Errors) > 0 {
			d.logger.Warn("legacy document migrated with errors",
				zap.Int("error_count", len(result.Errors)))
		}
		return doc.Questions.Items, nil

	default:
		return nil, fmt.Errorf("unrecognized document shape for investigation %q", investigationID)
	}
}

// readExportCounts derives finding counts from an exported document file.
func readExportCounts(path string) (int, map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read exported document: %w", err)
	}

	doc, err := blackboard.ParseDocument(data)
	if err != nil {
		return 0, nil, err
	}

	total := 0
	byArea := make(map[string]int, len(doc.Findings))
	for area, findings := range doc.Findings {
		byArea[area] = len(findings)
		total += len(findings)
	}
	return total, byArea, nil
}
