package blackboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupExportStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	mgr, err := NewManager(&redis.Options{Addr: mr.Addr()}, testAreas(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	store, err := mgr.CreateInvestigation(context.Background(), "inv-export", CaseContext{
		CaseID:   "INC-100",
		Title:    "Credential theft",
		Priority: "critical",
		InitialIndicators: []Indicator{
			{Type: "ip", Value: "203.0.113.7"},
		},
	})
	require.NoError(t, err)
	return store
}

func TestStoreExport(t *testing.T) {
	store := setupExportStore(t)
	ctx := context.Background()

	_, err := store.Write(ctx, "network", map[string]any{"dst_ip": "203.0.113.7"}, "network-analyst", ConfidenceHigh, []string{"c2"})
	require.NoError(t, err)
	_, err = store.Write(ctx, "endpoint", map[string]any{"process": "mimikatz.exe"}, "endpoint-analyst", ConfidenceHigh, nil)
	require.NoError(t, err)
	_, err = store.Write(ctx, "risk_scores", map[string]any{"overall": float64(85)}, "coordinator", ConfidenceMedium, nil)
	require.NoError(t, err)

	require.NoError(t, store.SetQuestions(ctx, []Question{
		{ID: "Q001", Category: "detection", Priority: PriorityCritical, Question: "What triggered the alert?"},
		{ID: "Q002", Category: "threat_intelligence", Priority: PriorityHigh, Question: "Is the indicator known bad?"},
	}))
	require.NoError(t, store.RecordAgentRun(ctx, "network-analyst", "completed"))

	doc, err := store.Export(ctx)
	require.NoError(t, err)

	t.Run("document shape", func(t *testing.T) {
		assert.Equal(t, SchemaVersion2, doc.SchemaVersion)
		assert.False(t, doc.ExportedAt.IsZero())
		assert.Equal(t, "inv-export", doc.Investigation.ID)
		assert.Equal(t, "INC-100", doc.Investigation.CaseContext.CaseID)
	})

	t.Run("all list areas present, map areas excluded from findings", func(t *testing.T) {
		require.Len(t, doc.Findings, 4)
		assert.Len(t, doc.Findings["network"], 1)
		assert.Len(t, doc.Findings["endpoint"], 1)
		assert.Empty(t, doc.Findings["timeline"])
		assert.Empty(t, doc.Findings["metadata"])
		assert.NotContains(t, doc.Findings, "risk_scores")
	})

	t.Run("risk scores lifted from the map area", func(t *testing.T) {
		require.NotNil(t, doc.RiskScores)
		assert.Equal(t, float64(85), doc.RiskScores["overall"])
	})

	t.Run("questions with derived summary", func(t *testing.T) {
		assert.Equal(t, 2, doc.Questions.Summary.TotalCount)
		assert.Equal(t, 1, doc.Questions.Summary.ByCategory["detection"])
		assert.Equal(t, 1, doc.Questions.Summary.ByPriority["critical"])
		assert.NotEmpty(t, doc.Questions.Summary.GeneratedAt)
		require.Len(t, doc.Questions.Items, 2)
	})

	t.Run("agent runs in processing section", func(t *testing.T) {
		run, ok := doc.Processing.Agents["network-analyst"]
		require.True(t, ok)
		assert.Equal(t, "completed", run.Status)
		assert.NotEmpty(t, run.LastRun)
	})
}

func TestStoreExport_LiftsProcessingErrors(t *testing.T) {
	store := setupExportStore(t)
	ctx := context.Background()

	_, err := store.Write(ctx, "metadata", map[string]any{
		"operation":  "invoke",
		"error_type": "timeout",
		"message":    "worker exceeded deadline",
		"context":    "intel lookup",
	}, "intel-analyst", ConfidenceHigh, []string{TagInvestigatorError})
	require.NoError(t, err)

	// A plain metadata finding is not an error record.
	_, err = store.Write(ctx, "metadata", map[string]any{"note": "triage summary"}, "triage-analyst", ConfidenceMedium, nil)
	require.NoError(t, err)

	doc, err := store.Export(ctx)
	require.NoError(t, err)

	require.Len(t, doc.Processing.Errors, 1)
	pe := doc.Processing.Errors[0]
	assert.Equal(t, "intel-analyst", pe.Agent)
	assert.Equal(t, "invoke", pe.Operation)
	assert.Equal(t, "timeout", pe.ErrorType)
	assert.Equal(t, "worker exceeded deadline", pe.Message)
	assert.Equal(t, "intel lookup", pe.Context)
	assert.NotEmpty(t, pe.Timestamp)

	// The originating finding still appears in the metadata area.
	assert.Len(t, doc.Findings["metadata"], 2)
}

func TestExportRoundTrip(t *testing.T) {
	store := setupExportStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Write(ctx, "network", map[string]any{"n": float64(i)}, "network-analyst", ConfidenceLow, nil)
		require.NoError(t, err)
	}

	doc, err := store.Export(ctx)
	require.NoError(t, err)

	data, err := doc.MarshalIndent()
	require.NoError(t, err)

	parsed, err := ParseDocument(data)
	require.NoError(t, err)

	assert.Equal(t, doc.Investigation.ID, parsed.Investigation.ID)
	require.Len(t, parsed.Findings["network"], 3)
	assert.Equal(t, doc.Findings["network"][0].ID, parsed.Findings["network"][0].ID)
	assert.Equal(t, doc.Findings["network"][2].Data["n"], parsed.Findings["network"][2].Data["n"])
}

func TestParseDocument_UnsupportedVersion(t *testing.T) {
	_, err := ParseDocument([]byte(`{"schema_version": "1.x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")

	_, err = ParseDocument([]byte(`{not json`))
	assert.Error(t, err)
}

func TestSummarizeQuestions(t *testing.T) {
	summary := SummarizeQuestions([]Question{
		{ID: "Q001", Category: "detection", Priority: PriorityCritical},
		{ID: "Q002", Category: "detection", Priority: PriorityHigh},
		{ID: "Q003", Category: "scope", Priority: PriorityHigh},
	})
	assert.Equal(t, 3, summary.TotalCount)
	assert.Equal(t, 2, summary.ByCategory["detection"])
	assert.Equal(t, 1, summary.ByCategory["scope"])
	assert.Equal(t, 2, summary.ByPriority["high"])
}

func TestSubscribeFindingEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	store, err := NewStore(rdb, "inv-events", testAreas(), nil)
	require.NoError(t, err)

	sub, err := SubscribeFindingEvents(ctx, rdb, "inv-events")
	require.NoError(t, err)
	defer sub.Close()

	// Give the subscriber goroutine time to register before publishing.
	time.Sleep(50 * time.Millisecond)

	id, err := store.Write(ctx, "network", map[string]any{"k": "v"}, "worker", ConfidenceHigh, nil)
	require.NoError(t, err)

	select {
	case f := <-sub.Events():
		require.NotNil(t, f)
		assert.Equal(t, id, f.ID)
		assert.Equal(t, "network", f.Area)
	case err := <-sub.Errors():
		t.Fatalf("unexpected subscription error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for finding event")
	}

	t.Run("close is idempotent", func(t *testing.T) {
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
	})
}
