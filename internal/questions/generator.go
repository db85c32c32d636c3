package questions

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"inquest/pkg/blackboard"
)

// Reasoner is the external reasoning collaborator that drafts the guiding
// questions for a case. Inquest treats it as opaque; any failure (timeout,
// malformed output, error) is absorbed by the deterministic fallback.
type Reasoner interface {
	GenerateQuestions(ctx context.Context, cc blackboard.CaseContext) ([]blackboard.Question, error)
}

// Generator produces an investigation's guiding questions.
type Generator struct {
	reasoner Reasoner
	logger   *zap.Logger
}

// NewGenerator creates a question generator. The reasoner may be nil, in
// which case only the fallback set is used.
func NewGenerator(reasoner Reasoner, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{reasoner: reasoner, logger: logger}
}

// Generate returns the guiding questions for a case. The reasoning
// collaborator is asked first; on any failure or an empty draft the fixed
// fallback set derived from the case context is returned instead. The
// result is never empty.
func (g *Generator) Generate(ctx context.Context, cc blackboard.CaseContext) []blackboard.Question {
	if g.reasoner != nil {
		drafted, err := g.reasoner.GenerateQuestions(ctx, cc)
		if err == nil && len(drafted) > 0 {
			return drafted
		}
		if err != nil {
			g.logger.Warn("question reasoner failed, using fallback set",
				zap.String("case_id", cc.CaseID),
				zap.Error(err))
		}
	}

	return FallbackQuestions(cc)
}

// FallbackQuestions is the fixed, deterministic default question set. It
// is a safety net, not a substitute for drafted questions: the wording is
// derived only from the case context so the set is reproducible.
func FallbackQuestions(cc blackboard.CaseContext) []blackboard.Question {
	indicatorQuestion := "Are any observed indicators associated with known threats?"
	if len(cc.InitialIndicators) > 0 {
		parts := make([]string, 0, len(cc.InitialIndicators))
		for _, ind := range cc.InitialIndicators {
			parts = append(parts, fmt.Sprintf("%s: %s", ind.Type, ind.Value))
		}
		indicatorQuestion = fmt.Sprintf("Are the indicators (%s) associated with known threats?",
			strings.Join(parts, ", "))
	}

	return []blackboard.Question{
		{
			ID:                    "Q001",
			Category:              "detection",
			Priority:              blackboard.PriorityCritical,
			Question:              "What triggered the initial detection of this case?",
			Rationale:             "Understanding the trigger scopes everything that follows.",
			InvestigationAreas:    []string{"timeline", blackboard.AreaMetadata},
			ExpectedEvidenceTypes: []string{"alert", "log_entry"},
		},
		{
			ID:                    "Q002",
			Category:              "intel",
			Priority:              blackboard.PriorityCritical,
			Question:              indicatorQuestion,
			Rationale:             "Known-bad indicators change containment urgency.",
			InvestigationAreas:    []string{"intel", "network"},
			ExpectedEvidenceTypes: []string{"reputation_report", "threat_feed_match"},
		},
		{
			ID:                    "Q003",
			Category:              "scope",
			Priority:              blackboard.PriorityHigh,
			Question:              "Which systems and accounts are confirmed or suspected compromised?",
			Rationale:             "The blast radius drives prioritization.",
			InvestigationAreas:    []string{"endpoint", "network"},
			ExpectedEvidenceTypes: []string{"host_triage", "auth_anomaly"},
		},
		{
			ID:                    "Q004",
			Category:              "persistence",
			Priority:              blackboard.PriorityHigh,
			Question:              "What persistence mechanisms exist on affected systems?",
			Rationale:             "Eradication fails if persistence survives.",
			InvestigationAreas:    []string{"endpoint"},
			ExpectedEvidenceTypes: []string{"autorun_entry", "scheduled_task", "service"},
		},
		{
			ID:                    "Q005",
			Category:              "lateral_movement",
			Priority:              blackboard.PriorityHigh,
			Question:              "What lateral movement occurred from the initially compromised systems?",
			Rationale:             "Movement paths reveal the true scope.",
			InvestigationAreas:    []string{"network", "endpoint"},
			ExpectedEvidenceTypes: []string{"remote_session", "auth_log"},
		},
		{
			ID:                    "Q006",
			Category:              "exfiltration",
			Priority:              blackboard.PriorityHigh,
			Question:              "What data was accessed or exposed during the incident?",
			Rationale:             "Exposure determines legal and notification duties.",
			InvestigationAreas:    []string{"network", "timeline"},
			ExpectedEvidenceTypes: []string{"transfer_volume", "file_access_log"},
		},
		{
			ID:                    "Q007",
			Category:              "impact",
			Priority:              blackboard.PriorityMedium,
			Question:              "What is the business impact of the affected systems and data?",
			Rationale:             "Impact framing guides response investment.",
			InvestigationAreas:    []string{blackboard.AreaMetadata},
			ExpectedEvidenceTypes: []string{"asset_inventory"},
		},
		{
			ID:                    "Q008",
			Category:              "attribution",
			Priority:              blackboard.PriorityMedium,
			Question:              "What attacker techniques were used across the intrusion?",
			Rationale:             "Technique mapping supports detection engineering.",
			InvestigationAreas:    []string{"endpoint", "network", "intel"},
			ExpectedEvidenceTypes: []string{"technique_observation"},
		},
		{
			ID:                    "Q009",
			Category:              "containment",
			Priority:              blackboard.PriorityCritical,
			Question:              "What immediate containment actions should be taken?",
			Rationale:             "Containment decisions cannot wait for the full picture.",
			InvestigationAreas:    []string{"endpoint", "network"},
			ExpectedEvidenceTypes: []string{"containment_option"},
		},
		{
			ID:                    "Q010",
			Category:              "forensics",
			Priority:              blackboard.PriorityMedium,
			Question:              "What evidence must be preserved before remediation begins?",
			Rationale:             "Remediation destroys volatile evidence.",
			InvestigationAreas:    []string{"endpoint", "timeline"},
			ExpectedEvidenceTypes: []string{"forensic_image", "memory_capture"},
		},
	}
}
