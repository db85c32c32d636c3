package questions

import (
	"fmt"
	"regexp"
	"strings"

	"inquest/pkg/blackboard"
)

// HierarchyProcessor expands compound indicator questions into a
// parent/child hierarchy: one child per discrete indicator.
//
// A question is only expanded when BOTH conditions hold: it contains at
// least two distinct indicators, and its wording matches the
// association/reputation intent lexicon. The lexicon is a policy table
// supplied by configuration, not a fixed algorithm.
type HierarchyProcessor struct {
	lexicon []string
}

// NewHierarchyProcessor creates a processor with the given intent lexicon.
// Lexicon entries are matched case-insensitively as substrings.
func NewHierarchyProcessor(lexicon []string) *HierarchyProcessor {
	lowered := make([]string, 0, len(lexicon))
	for _, phrase := range lexicon {
		lowered = append(lowered, strings.ToLower(phrase))
	}
	return &HierarchyProcessor{lexicon: lowered}
}

// Process returns the input questions with children appended after each
// expanded parent. Parents are passed through unchanged. Questions that
// already carry a single indicator, and parents whose children are
// already present in the set, are never split again, so the processor is
// idempotent.
func (p *HierarchyProcessor) Process(questions []blackboard.Question) []blackboard.Question {
	expanded := make(map[string]bool)
	for _, q := range questions {
		if q.ParentID != "" {
			expanded[q.ParentID] = true
		}
	}

	result := make([]blackboard.Question, 0, len(questions))

	for _, q := range questions {
		result = append(result, q)

		// Already a child, or a parent expanded on a previous pass.
		if q.Indicator != nil || expanded[q.ID] {
			continue
		}

		indicators := ExtractIndicators(q.Question)
		if len(indicators) < 2 || !p.matchesIntent(q.Question) {
			continue
		}

		for i, indicator := range indicators {
			result = append(result, makeChild(q, indicator, i+1))
		}
	}

	return result
}

// matchesIntent reports whether the wording matches the intent lexicon.
func (p *HierarchyProcessor) matchesIntent(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range p.lexicon {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// parentheticalPattern matches a parenthesized group in a question, the
// usual home of a compound indicator list.
var parentheticalPattern = regexp.MustCompile(`\(([^)]+)\)`)

// makeChild builds one child question carrying a single indicator,
// inheriting every non-overridden field from the parent.
func makeChild(parent blackboard.Question, indicator blackboard.Indicator, index int) blackboard.Question {
	child := blackboard.Question{
		ID:                    fmt.Sprintf("%s.%d", parent.ID, index),
		ParentID:              parent.ID,
		Category:              parent.Category,
		Priority:              parent.Priority,
		Question:              substituteIndicator(parent.Question, indicator),
		Rationale:             parent.Rationale,
		InvestigationAreas:    append([]string{}, parent.InvestigationAreas...),
		ExpectedEvidenceTypes: append([]string{}, parent.ExpectedEvidenceTypes...),
		Indicator:             &blackboard.Indicator{Type: indicator.Type, Value: indicator.Value},
	}
	return child
}

// substituteIndicator rewrites the parent's wording around a single
// indicator. When the parent lists its indicators in a parenthetical, the
// whole parenthetical is replaced; otherwise the focused indicator is
// appended as a clause.
func substituteIndicator(text string, indicator blackboard.Indicator) string {
	focused := fmt.Sprintf("%s: %s", indicator.Type, indicator.Value)

	if loc := parentheticalPattern.FindStringIndex(text); loc != nil {
		inner := text[loc[0]+1 : loc[1]-1]
		if len(ExtractIndicators(inner)) > 0 {
			return text[:loc[0]] + "(" + focused + ")" + text[loc[1]:]
		}
	}

	return strings.TrimRight(text, "?") + fmt.Sprintf(" (%s)?", focused)
}
