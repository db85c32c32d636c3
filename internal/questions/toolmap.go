package questions

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"inquest/internal/config"
	"inquest/pkg/blackboard"
)

// CapabilityReasoner is the external collaborator that maps a question to
// the capabilities available to answer it.
type CapabilityReasoner interface {
	MapQuestion(ctx context.Context, q blackboard.Question, available []string) (*blackboard.Enhancement, error)
}

// ToolMapper annotates questions with capability enhancements.
//
// Mapping runs strictly after generation and hierarchy expansion - never
// before - so the comprehensiveness of the question set is never biased by
// what capabilities happen to be available.
type ToolMapper struct {
	reasoner  CapabilityReasoner
	available []string
	rules     []config.FallbackRule
	logger    *zap.Logger
}

// NewToolMapper creates a mapper over the deployment's available
// capabilities and keyword fallback rules. The reasoner may be nil.
func NewToolMapper(reasoner CapabilityReasoner, capabilities config.CapabilitiesConfig, logger *zap.Logger) *ToolMapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolMapper{
		reasoner:  reasoner,
		available: capabilities.Available,
		rules:     capabilities.Fallback,
		logger:    logger,
	}
}

// Map returns the questions with enhancements attached. Questions are
// never dropped or reordered; a question the collaborator cannot map gets
// the deterministic keyword fallback instead.
func (m *ToolMapper) Map(ctx context.Context, questions []blackboard.Question) []blackboard.Question {
	result := make([]blackboard.Question, len(questions))

	for i, q := range questions {
		if m.reasoner != nil {
			enhancement, err := m.reasoner.MapQuestion(ctx, q, m.available)
			if err == nil && enhancement != nil {
				q.Enhancement = enhancement
				result[i] = q
				continue
			}
			if err != nil {
				m.logger.Warn("capability reasoner failed, using keyword fallback",
					zap.String("question_id", q.ID),
					zap.Error(err))
			}
		}

		q.Enhancement = m.fallbackEnhancement(q)
		result[i] = q
	}

	return result
}

// fallbackEnhancement applies the first keyword rule whose terms appear in
// the question text. Capabilities the rule names but the deployment lacks
// move to the wishlist.
func (m *ToolMapper) fallbackEnhancement(q blackboard.Question) *blackboard.Enhancement {
	text := strings.ToLower(q.Question)
	if q.Indicator != nil {
		text += " " + strings.ToLower(q.Indicator.Type)
	}

	for _, rule := range m.rules {
		if !matchesAnyTerm(text, rule.Match) {
			continue
		}

		available, missing := partitionCapabilities(rule.Capabilities, m.available)
		return &blackboard.Enhancement{
			AvailableCapabilities: available,
			SuggestedApproach:     rule.Approach,
			CapabilityWishlist:    append(missing, rule.Wishlist...),
			DataSourcesNeeded:     rule.DataSources,
			AlternativeMethods:    rule.Alternatives,
		}
	}

	return &blackboard.Enhancement{
		AvailableCapabilities: []string{},
		SuggestedApproach:     []string{"Manual review of collected evidence"},
		AlternativeMethods:    []string{"Analyst interview and log sampling"},
	}
}

func matchesAnyTerm(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// partitionCapabilities splits a rule's capabilities into those present in
// the deployment and those missing from it.
func partitionCapabilities(wanted, available []string) (present, missing []string) {
	availableSet := make(map[string]bool, len(available))
	for _, c := range available {
		availableSet[c] = true
	}

	for _, c := range wanted {
		if availableSet[c] {
			present = append(present, c)
		} else {
			missing = append(missing, c)
		}
	}
	return present, missing
}
