// Package schema detects and converts between the two persisted
// investigation-document shapes: the legacy loosely-typed v1 shape (one
// flat knowledge_areas map with questions buried in generic findings) and
// the versioned v2 shape produced by the blackboard exporter.
//
// Migration is tolerant: a partially-malformed v1 document yields a v2
// document with one processing.errors entry per unparseable fragment
// rather than aborting. Only input that cannot be parsed as the source
// format at all is a hard failure, and that is the caller's to detect.
package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"inquest/pkg/blackboard"
)

// Detected document versions.
const (
	Version1       = "1.x"
	Version2       = "2.0"
	VersionUnknown = "unknown"
)

// legacyQuestionsArea is the v1 area that buried question batches inside
// generic findings.
const legacyQuestionsArea = "investigation_questions"

// DetectVersion classifies a parsed document. An explicit schema_version
// field always wins; otherwise the shape decides.
func DetectVersion(doc map[string]any) string {
	if sv, ok := doc["schema_version"].(string); ok {
		switch {
		case sv == Version2:
			return Version2
		case len(sv) > 0 && sv[0] == '1':
			return Version1
		default:
			return VersionUnknown
		}
	}

	_, hasAreas := doc["knowledge_areas"]
	_, hasInvestigation := doc["investigation"]
	if hasAreas && !hasInvestigation {
		return Version1
	}

	_, hasQuestions := doc["questions"]
	_, hasFindings := doc["findings"]
	_, hasProcessing := doc["processing"]
	if hasInvestigation && hasQuestions && hasFindings && hasProcessing {
		return Version2
	}

	return VersionUnknown
}

// Result summarizes one migration run.
type Result struct {
	Findings  int                           // list-area findings carried over
	Questions int                           // questions recovered from batches
	Errors    []blackboard.ProcessingError  // one entry per unparseable fragment
}

// MigrateV1ToV2 restructures a legacy v1 document into the v2 shape.
// Unparseable fragments become processing.errors entries in the output
// (also collected in the Result); the migration itself never fails.
func MigrateV1ToV2(v1 map[string]any) (*blackboard.Document, *Result) {
	result := &Result{}
	doc := &blackboard.Document{
		SchemaVersion: blackboard.SchemaVersion2,
		ExportedAt:    time.Now().UTC(),
		Findings:      make(map[string][]*blackboard.Finding),
		Processing: blackboard.ProcessingSection{
			Agents: make(map[string]blackboard.AgentRun),
			Errors: []blackboard.ProcessingError{},
		},
	}

	areas, _ := v1["knowledge_areas"].(map[string]any)

	// Investigation metadata lived in a map-typed area in v1.
	if meta, ok := areas["investigation_metadata"].(map[string]any); ok {
		doc.Investigation = migrateInvestigation(meta)
	}
	if doc.Investigation.ID == "" {
		if id, ok := v1["investigation_id"].(string); ok {
			doc.Investigation.ID = id
		}
	}
	if doc.Investigation.Status == "" {
		doc.Investigation.Status = blackboard.StatusActive
	}

	var questions []blackboard.Question

	for areaName, content := range areas {
		switch value := content.(type) {
		case []any:
			if areaName == legacyQuestionsArea {
				questions = append(questions, migrateQuestionBatches(value, result)...)
				continue
			}
			doc.Findings[areaName] = migrateFindings(areaName, value, result)

		case map[string]any:
			switch areaName {
			case blackboard.AreaRiskScores:
				if len(value) > 0 {
					doc.RiskScores = value
				}
			case "investigation_metadata":
				// Already handled above.
			case "agent_status":
				for name, raw := range value {
					if run, ok := migrateAgentRun(raw); ok {
						doc.Processing.Agents[name] = run
					}
				}
			}

		default:
			result.addError(areaName, "migrate_area",
				fmt.Sprintf("area %q has unexpected shape %T", areaName, content))
		}
	}

	doc.Questions = blackboard.QuestionsSection{
		Summary: blackboard.SummarizeQuestions(questions),
		Items:   questions,
	}
	result.Questions = len(questions)

	doc.Processing.Errors = append(doc.Processing.Errors, result.Errors...)
	return doc, result
}

func (r *Result) addError(agent, operation, message string) {
	r.Errors = append(r.Errors, blackboard.ProcessingError{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Agent:     agent,
		Operation: operation,
		ErrorType: "migration_parse_error",
		Message:   message,
	})
}

func migrateInvestigation(meta map[string]any) blackboard.Investigation {
	inv := blackboard.Investigation{Status: blackboard.StatusActive}

	if id, ok := meta["id"].(string); ok {
		inv.ID = id
	}
	if status, ok := meta["status"].(string); ok {
		inv.Status = blackboard.InvestigationStatus(status)
	}
	if createdAt, ok := meta["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			inv.CreatedAt = t
		}
	}
	if updatedAt, ok := meta["last_updated"].(string); ok {
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			inv.UpdatedAt = t
		}
	}
	if rawContext, ok := meta["case_context"].(map[string]any); ok {
		inv.CaseContext = migrateCaseContext(rawContext)
	}

	return inv
}

func migrateCaseContext(raw map[string]any) blackboard.CaseContext {
	cc := blackboard.CaseContext{}
	if v, ok := raw["case_id"].(string); ok {
		cc.CaseID = v
	}
	if v, ok := raw["title"].(string); ok {
		cc.Title = v
	}
	if v, ok := raw["priority"].(string); ok {
		cc.Priority = v
	}
	if v, ok := raw["investigation_type"].(string); ok {
		cc.InvestigationType = v
	}
	if v, ok := raw["timeframe"].(map[string]any); ok {
		cc.Timeframe = v
	}
	if sources, ok := raw["data_sources"].([]any); ok {
		for _, s := range sources {
			if str, ok := s.(string); ok {
				cc.DataSources = append(cc.DataSources, str)
			}
		}
	}
	if indicators, ok := raw["initial_indicators"].([]any); ok {
		for _, item := range indicators {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			ind := blackboard.Indicator{}
			ind.Type, _ = m["type"].(string)
			ind.Value, _ = m["value"].(string)
			cc.InitialIndicators = append(cc.InitialIndicators, ind)
		}
	}
	return cc
}

// migrateFindings converts one v1 list area. Fragments that are not
// finding-shaped maps produce an error entry and are skipped.
func migrateFindings(area string, items []any, result *Result) []*blackboard.Finding {
	findings := make([]*blackboard.Finding, 0, len(items))

	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			result.addError(area, "migrate_finding",
				fmt.Sprintf("area %q item %d is not an object", area, i))
			continue
		}

		finding := &blackboard.Finding{
			Area:       area,
			Confidence: blackboard.ConfidenceMedium,
			Tags:       []string{},
		}

		if id, ok := raw["id"].(string); ok && id != "" {
			finding.ID = id
		} else {
			finding.ID = uuid.New().String()
		}
		if producer, ok := raw["agent"].(string); ok {
			finding.Producer = producer
		} else if producer, ok := raw["producer"].(string); ok {
			finding.Producer = producer
		} else {
			finding.Producer = "unknown"
		}
		if confidence, ok := raw["confidence"].(string); ok {
			if c := blackboard.Confidence(confidence); c.Validate() == nil {
				finding.Confidence = c
			}
		}
		if timestamp, ok := raw["timestamp"].(string); ok {
			if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
				finding.Timestamp = t
			}
		}
		if data, ok := raw["data"].(map[string]any); ok {
			finding.Data = data
		}
		if tags, ok := raw["tags"].([]any); ok {
			for _, tag := range tags {
				if str, ok := tag.(string); ok {
					finding.Tags = append(finding.Tags, str)
				}
			}
		}

		findings = append(findings, finding)
		result.Findings++
	}

	return findings
}

// migrateQuestionBatches unpacks the v1 questions_batch findings into
// individual questions.
func migrateQuestionBatches(items []any, result *Result) []blackboard.Question {
	var questions []blackboard.Question

	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			result.addError(legacyQuestionsArea, "migrate_questions",
				fmt.Sprintf("batch item %d is not an object", i))
			continue
		}

		data, _ := raw["data"].(map[string]any)
		batch, ok := data["questions"].([]any)
		if !ok {
			result.addError(legacyQuestionsArea, "migrate_questions",
				fmt.Sprintf("batch item %d has no questions list", i))
			continue
		}

		for j, rawQuestion := range batch {
			m, ok := rawQuestion.(map[string]any)
			if !ok {
				result.addError(legacyQuestionsArea, "migrate_questions",
					fmt.Sprintf("batch item %d question %d is not an object", i, j))
				continue
			}
			questions = append(questions, migrateQuestion(m))
		}
	}

	return questions
}

func migrateQuestion(raw map[string]any) blackboard.Question {
	q := blackboard.Question{Priority: blackboard.PriorityMedium}

	if v, ok := raw["id"].(string); ok {
		q.ID = v
	}
	if v, ok := raw["parent_id"].(string); ok {
		q.ParentID = v
	}
	if v, ok := raw["category"].(string); ok {
		q.Category = v
	}
	if v, ok := raw["priority"].(string); ok {
		if p := blackboard.QuestionPriority(v); p.Validate() == nil {
			q.Priority = p
		}
	}
	if v, ok := raw["question"].(string); ok {
		q.Question = v
	}
	if v, ok := raw["rationale"].(string); ok {
		q.Rationale = v
	}
	if areas, ok := raw["investigation_areas"].([]any); ok {
		for _, a := range areas {
			if str, ok := a.(string); ok {
				q.InvestigationAreas = append(q.InvestigationAreas, str)
			}
		}
	}
	if types, ok := raw["expected_evidence_types"].([]any); ok {
		for _, t := range types {
			if str, ok := t.(string); ok {
				q.ExpectedEvidenceTypes = append(q.ExpectedEvidenceTypes, str)
			}
		}
	}

	return q
}

func migrateAgentRun(raw any) (blackboard.AgentRun, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return blackboard.AgentRun{}, false
	}
	run := blackboard.AgentRun{}
	run.Status, _ = m["status"].(string)
	run.LastRun, _ = m["last_run"].(string)
	return run, run.Status != "" || run.LastRun != ""
}
