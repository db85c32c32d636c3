package questions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/config"
	"inquest/pkg/blackboard"
)

func testProcessor() *HierarchyProcessor {
	return NewHierarchyProcessor(config.Default().Hierarchy.Lexicon)
}

func TestHierarchyProcess_CompoundQuestion(t *testing.T) {
	p := testProcessor()

	parent := blackboard.Question{
		ID:                 "Q002",
		Category:           "intel",
		Priority:           blackboard.PriorityCritical,
		Question:           "Are the indicators (ip: 10.0.0.5, domain: evil.example) associated with known threats?",
		InvestigationAreas: []string{"intel", "network"},
	}

	result := p.Process([]blackboard.Question{parent})
	require.Len(t, result, 3)

	t.Run("parent passes through unchanged", func(t *testing.T) {
		assert.Equal(t, parent.ID, result[0].ID)
		assert.Equal(t, parent.Question, result[0].Question)
		assert.Nil(t, result[0].Indicator)
		assert.Empty(t, result[0].ParentID)
	})

	t.Run("one child per indicator", func(t *testing.T) {
		first, second := result[1], result[2]

		assert.Equal(t, "Q002.1", first.ID)
		assert.Equal(t, "Q002", first.ParentID)
		require.NotNil(t, first.Indicator)
		assert.Equal(t, "ip", first.Indicator.Type)
		assert.Equal(t, "10.0.0.5", first.Indicator.Value)
		assert.Equal(t, "Are the indicators (ip: 10.0.0.5) associated with known threats?", first.Question)

		assert.Equal(t, "Q002.2", second.ID)
		require.NotNil(t, second.Indicator)
		assert.Equal(t, "domain", second.Indicator.Type)
		assert.Equal(t, "evil.example", second.Indicator.Value)
		assert.Equal(t, "Are the indicators (domain: evil.example) associated with known threats?", second.Question)
	})

	t.Run("children inherit parent fields", func(t *testing.T) {
		child := result[1]
		assert.Equal(t, parent.Category, child.Category)
		assert.Equal(t, parent.Priority, child.Priority)
		assert.Equal(t, parent.InvestigationAreas, child.InvestigationAreas)
	})

	t.Run("idempotent on a second pass", func(t *testing.T) {
		again := p.Process(result)
		assert.Equal(t, result, again)
	})
}

func TestHierarchyProcess_NoExpansion(t *testing.T) {
	p := testProcessor()

	t.Run("single indicator is not split", func(t *testing.T) {
		q := blackboard.Question{
			ID:       "Q001",
			Question: "Is the indicator (ip: 10.0.0.5) associated with known threats?",
		}
		result := p.Process([]blackboard.Question{q})
		assert.Len(t, result, 1)
	})

	t.Run("two indicators without the intent wording stay compound", func(t *testing.T) {
		q := blackboard.Question{
			ID:       "Q003",
			Question: "Did 10.0.0.5 communicate with 192.168.1.20 during the incident window?",
		}
		result := p.Process([]blackboard.Question{q})
		assert.Len(t, result, 1)
	})

	t.Run("intent wording without indicators stays intact", func(t *testing.T) {
		q := blackboard.Question{
			ID:       "Q004",
			Question: "Are any observed artifacts associated with known threats?",
		}
		result := p.Process([]blackboard.Question{q})
		assert.Len(t, result, 1)
	})
}

func TestHierarchyProcess_AppendsClauseWithoutParenthetical(t *testing.T) {
	p := testProcessor()

	q := blackboard.Question{
		ID:       "Q005",
		Question: "Do 10.0.0.5 and evil.example have a bad reputation?",
	}
	result := p.Process([]blackboard.Question{q})
	require.Len(t, result, 3)
	assert.Equal(t, "Do 10.0.0.5 and evil.example have a bad reputation (ip: 10.0.0.5)?", result[1].Question)
	assert.Equal(t, "Do 10.0.0.5 and evil.example have a bad reputation (domain: evil.example)?", result[2].Question)
}
