package blackboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion2 identifies the current exported document shape.
const SchemaVersion2 = "2.0"

// Conventional area names the exporter and coordinator agree on.
// Deployments may declare additional areas; these two have fixed roles.
const (
	// AreaMetadata is the list area holding investigation bookkeeping
	// findings: initial indicators, worker errors, phase notes.
	AreaMetadata = "metadata"

	// AreaRiskScores is the map area holding merged risk scoring state.
	AreaRiskScores = "risk_scores"

	// AreaInvestigationMeta is the map area holding merged investigation
	// parameters: priority, data sources, investigation type, timeframe.
	AreaInvestigationMeta = "investigation_metadata"
)

// TagInvestigatorError marks metadata findings that record a contained
// worker failure. The exporter lifts them into processing.errors.
const TagInvestigatorError = "investigator_error"

// Document is the versioned (v2) exported investigation document.
type Document struct {
	SchemaVersion string                `json:"schema_version"`
	ExportedAt    time.Time             `json:"exported_at"`
	Investigation Investigation         `json:"investigation"`
	Questions     QuestionsSection      `json:"questions"`
	Findings      map[string][]*Finding `json:"findings"`
	Processing    ProcessingSection     `json:"processing"`
	RiskScores    map[string]any        `json:"risk_scores,omitempty"`
}

// QuestionsSection groups the guiding questions with a derived summary.
type QuestionsSection struct {
	Summary QuestionsSummary `json:"summary"`
	Items   []Question       `json:"items"`
}

// QuestionsSummary is derived from the question items at export time.
type QuestionsSummary struct {
	TotalCount  int            `json:"total_count"`
	ByCategory  map[string]int `json:"by_category"`
	ByPriority  map[string]int `json:"by_priority"`
	GeneratedAt string         `json:"generated_at,omitempty"`
}

// ProcessingSection records worker execution state and contained errors.
type ProcessingSection struct {
	Agents map[string]AgentRun `json:"agents"`
	Errors []ProcessingError   `json:"errors"`
}

// AgentRun is one worker's most recent run outcome.
type AgentRun struct {
	Status  string `json:"status"`
	LastRun string `json:"last_run"`
}

// ProcessingError is one contained failure, lifted from the metadata area.
type ProcessingError struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Agent     string `json:"agent"`
	Operation string `json:"operation"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Context   string `json:"context,omitempty"`
}

// SummarizeQuestions derives the summary counts for a question set.
func SummarizeQuestions(questions []Question) QuestionsSummary {
	summary := QuestionsSummary{
		TotalCount: len(questions),
		ByCategory: make(map[string]int),
		ByPriority: make(map[string]int),
	}
	for _, q := range questions {
		summary.ByCategory[q.Category]++
		summary.ByPriority[string(q.Priority)]++
	}
	return summary
}

// Export serializes the entire investigation into a v2 document: metadata,
// questions, every list area's findings, processing state, and merged risk
// scores. Export is a pure snapshot - it never mutates the store.
func (s *Store) Export(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaHash, err := s.rdb.HGetAll(ctx, MetaKey(s.investigationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read investigation metadata: %w", err)
	}
	if len(metaHash) == 0 {
		return nil, fmt.Errorf("investigation %s: %w", s.investigationID, ErrNotFound)
	}

	inv, err := HashToInvestigation(metaHash)
	if err != nil {
		return nil, fmt.Errorf("failed to parse investigation metadata: %w", err)
	}

	doc := &Document{
		SchemaVersion: SchemaVersion2,
		ExportedAt:    time.Now().UTC(),
		Investigation: *inv,
		Findings:      make(map[string][]*Finding),
		Processing: ProcessingSection{
			Agents: make(map[string]AgentRun),
			Errors: []ProcessingError{},
		},
	}

	// Questions with derived summary.
	var questions []Question
	if questionsJSON := metaHash["questions"]; questionsJSON != "" {
		if err := json.Unmarshal([]byte(questionsJSON), &questions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stored questions: %w", err)
		}
	}
	doc.Questions = QuestionsSection{
		Summary: SummarizeQuestions(questions),
		Items:   questions,
	}
	if generatedAt, ok := metaHash["questions_generated_at"]; ok {
		doc.Questions.Summary.GeneratedAt = generatedAt
	}

	// Worker run records are stored as agent:{name} fields in the meta hash.
	for field, value := range metaHash {
		name, ok := strings.CutPrefix(field, "agent:")
		if !ok {
			continue
		}
		var run AgentRun
		if err := json.Unmarshal([]byte(value), &run); err != nil {
			return nil, fmt.Errorf("failed to parse run record for agent %q: %w", name, err)
		}
		doc.Processing.Agents[name] = run
	}

	// All list areas, in declared order.
	for _, area := range s.areaOrder {
		switch s.areas[area] {
		case AreaKindList:
			findings, err := s.readListAreaLocked(ctx, area, nil)
			if err != nil {
				return nil, err
			}
			doc.Findings[area] = findings

			if area == AreaMetadata {
				doc.Processing.Errors = append(doc.Processing.Errors, liftProcessingErrors(findings)...)
			}

		case AreaKindMap:
			if area != AreaRiskScores {
				continue
			}
			scores, err := s.readMapAreaLocked(ctx, area)
			if err != nil {
				return nil, err
			}
			if len(scores) > 0 {
				doc.RiskScores = scores
			}
		}
	}

	return doc, nil
}

// liftProcessingErrors converts investigator_error metadata findings into
// structured processing errors.
func liftProcessingErrors(findings []*Finding) []ProcessingError {
	var errs []ProcessingError
	for _, f := range findings {
		if !tagsOverlap([]string{TagInvestigatorError}, f.Tags) {
			continue
		}

		pe := ProcessingError{
			ID:        f.ID,
			Timestamp: f.Timestamp.Format(time.RFC3339),
			Agent:     f.Producer,
		}
		if v, ok := f.Data["operation"].(string); ok {
			pe.Operation = v
		}
		if v, ok := f.Data["error_type"].(string); ok {
			pe.ErrorType = v
		}
		if v, ok := f.Data["message"].(string); ok {
			pe.Message = v
		}
		if v, ok := f.Data["context"].(string); ok {
			pe.Context = v
		}
		errs = append(errs, pe)
	}
	return errs
}

// MarshalIndent renders the document as indented JSON.
func (d *Document) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// ParseDocument parses an exported v2 document from JSON bytes.
// Round-trips with Export: the set of findings per area is preserved.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse exported document: %w", err)
	}
	if doc.SchemaVersion != SchemaVersion2 {
		return nil, fmt.Errorf("unsupported schema version %q", doc.SchemaVersion)
	}
	return &doc, nil
}
