package questions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/pkg/blackboard"
)

type stubReasoner struct {
	questions []blackboard.Question
	err       error
}

func (s *stubReasoner) GenerateQuestions(ctx context.Context, cc blackboard.CaseContext) ([]blackboard.Question, error) {
	return s.questions, s.err
}

func TestGeneratorGenerate(t *testing.T) {
	ctx := context.Background()
	cc := blackboard.CaseContext{CaseID: "INC-1"}

	t.Run("prefers drafted questions", func(t *testing.T) {
		drafted := []blackboard.Question{
			{ID: "Q001", Category: "detection", Priority: blackboard.PriorityHigh, Question: "Custom question?"},
		}
		g := NewGenerator(&stubReasoner{questions: drafted}, nil)

		got := g.Generate(ctx, cc)
		require.Len(t, got, 1)
		assert.Equal(t, "Custom question?", got[0].Question)
	})

	t.Run("reasoner error falls back", func(t *testing.T) {
		g := NewGenerator(&stubReasoner{err: errors.New("model timeout")}, nil)
		got := g.Generate(ctx, cc)
		assert.NotEmpty(t, got)
		assert.Equal(t, "Q001", got[0].ID)
	})

	t.Run("empty draft falls back", func(t *testing.T) {
		g := NewGenerator(&stubReasoner{}, nil)
		got := g.Generate(ctx, cc)
		assert.NotEmpty(t, got)
	})

	t.Run("nil reasoner falls back", func(t *testing.T) {
		g := NewGenerator(nil, nil)
		got := g.Generate(ctx, cc)
		assert.NotEmpty(t, got)
	})
}

func TestFallbackQuestions(t *testing.T) {
	t.Run("deterministic and never empty", func(t *testing.T) {
		cc := blackboard.CaseContext{CaseID: "INC-1"}
		first := FallbackQuestions(cc)
		second := FallbackQuestions(cc)
		require.NotEmpty(t, first)
		assert.Equal(t, first, second)

		ids := make(map[string]bool)
		for _, q := range first {
			assert.False(t, ids[q.ID], "duplicate ID %s", q.ID)
			ids[q.ID] = true
			assert.NotEmpty(t, q.Category)
			assert.NoError(t, q.Priority.Validate())
			assert.NotEmpty(t, q.Question)
		}
	})

	t.Run("indicator question names the initial indicators", func(t *testing.T) {
		cc := blackboard.CaseContext{
			CaseID: "INC-2",
			InitialIndicators: []blackboard.Indicator{
				{Type: "ip", Value: "10.0.0.5"},
				{Type: "domain", Value: "evil.example"},
			},
		}
		questions := FallbackQuestions(cc)

		var intel *blackboard.Question
		for i := range questions {
			if questions[i].ID == "Q002" {
				intel = &questions[i]
			}
		}
		require.NotNil(t, intel)
		assert.Equal(t, "Are the indicators (ip: 10.0.0.5, domain: evil.example) associated with known threats?", intel.Question)
	})

	t.Run("indicator question expands through the hierarchy", func(t *testing.T) {
		cc := blackboard.CaseContext{
			CaseID: "INC-3",
			InitialIndicators: []blackboard.Indicator{
				{Type: "ip", Value: "10.0.0.5"},
				{Type: "domain", Value: "evil.example"},
			},
		}
		result := testProcessor().Process(FallbackQuestions(cc))

		var children []blackboard.Question
		for _, q := range result {
			if q.ParentID == "Q002" {
				children = append(children, q)
			}
		}
		require.Len(t, children, 2)
		assert.Equal(t, "Q002.1", children[0].ID)
		assert.Equal(t, "Q002.2", children[1].ID)
	})
}
