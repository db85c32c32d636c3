package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/researchlog"
	"inquest/pkg/blackboard"
)

func setupTestDashboard(t *testing.T) (*Dashboard, string, string) {
	t.Helper()

	exportDir := t.TempDir()
	logDir := t.TempDir()
	return New(exportDir, logDir, time.Hour, nil), exportDir, logDir
}

func writeTestExport(t *testing.T, exportDir, investigationID string, findingsPerArea map[string]int) {
	t.Helper()

	doc := &blackboard.Document{
		SchemaVersion: blackboard.SchemaVersion2,
		ExportedAt:    time.Now().UTC(),
		Investigation: blackboard.Investigation{
			ID:     investigationID,
			Status: blackboard.StatusActive,
		},
		Findings: make(map[string][]*blackboard.Finding),
	}
	for area, n := range findingsPerArea {
		for i := 0; i < n; i++ {
			doc.Findings[area] = append(doc.Findings[area], &blackboard.Finding{
				ID:         "f-" + area + "-" + string(rune('a'+i)),
				Area:       area,
				Producer:   "worker",
				Confidence: blackboard.ConfidenceLow,
			})
		}
	}

	data, err := doc.MarshalIndent()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ExportFilePath(exportDir, investigationID), data, 0o644))
}

func TestDashboardPushPath(t *testing.T) {
	d, _, _ := setupTestDashboard(t)

	var mu sync.Mutex
	var updates []Snapshot
	d.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, s)
	})

	d.RegisterInvestigation("inv-1", "INC-1")
	d.UpdatePhase("inv-1", "investigation")
	d.UpdateActiveAgents("inv-1", []string{"network-analyst", "endpoint-analyst"})
	d.UpdateFindingsCount("inv-1", 7, map[string]int{"network": 4, "endpoint": 3})
	d.CompleteInvestigation("inv-1", "completed")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 5)

	assert.Equal(t, "created", updates[0].Phase)
	assert.Equal(t, "INC-1", updates[0].CaseID)
	assert.Equal(t, "investigation", updates[1].Phase)
	assert.Equal(t, []string{"endpoint-analyst", "network-analyst"}, updates[2].ActiveAgents)
	assert.Equal(t, 7, updates[3].TotalFindings)

	final := updates[4]
	assert.Equal(t, "completed", final.Status)
	assert.Empty(t, final.ActiveAgents)
	assert.False(t, final.CompletedAt.IsZero())
}

func TestDashboardSubscriberPanicIsolation(t *testing.T) {
	d, _, _ := setupTestDashboard(t)

	d.Subscribe(func(s Snapshot) { panic("subscriber bug") })

	var got []Snapshot
	d.Subscribe(func(s Snapshot) { got = append(got, s) })

	d.RegisterInvestigation("inv-1", "INC-1")

	// The publisher survived and later subscribers still ran.
	require.Len(t, got, 1)
	snapshot, ok := d.Get("inv-1")
	require.True(t, ok)
	assert.Equal(t, "active", snapshot.Status)
}

func TestDashboardGetAndList(t *testing.T) {
	d, _, _ := setupTestDashboard(t)

	_, ok := d.Get("inv-1")
	assert.False(t, ok)

	d.RegisterInvestigation("inv-b", "INC-B")
	d.RegisterInvestigation("inv-a", "INC-A")

	list := d.List()
	require.Len(t, list, 2)
	assert.Equal(t, "inv-a", list[0].InvestigationID)
	assert.Equal(t, "inv-b", list[1].InvestigationID)
}

func TestDashboardPullRefresh(t *testing.T) {
	d, exportDir, logDir := setupTestDashboard(t)

	d.RegisterInvestigation("inv-1", "INC-1")

	writeTestExport(t, exportDir, "inv-1", map[string]int{"network": 2, "endpoint": 1})

	log, err := researchlog.New(logDir, "inv-1", nil)
	require.NoError(t, err)
	a, err := log.StartTask("network-analyst", "analysis", "netflow", nil)
	require.NoError(t, err)
	_, err = log.StartTask("endpoint-analyst", "analysis", "triage", nil)
	require.NoError(t, err)
	require.NoError(t, log.UpdateTask(a, researchlog.StatusCompleted, nil))
	require.NoError(t, log.Close())

	d.RefreshAll()

	snapshot, ok := d.Get("inv-1")
	require.True(t, ok)
	assert.Equal(t, 3, snapshot.TotalFindings)
	assert.Equal(t, map[string]int{"network": 2, "endpoint": 1}, snapshot.FindingsByArea)
	// Only the non-terminal task counts as active.
	assert.Equal(t, []string{"endpoint-analyst"}, snapshot.ActiveAgents)

	t.Run("completed investigations are not refreshed", func(t *testing.T) {
		d.CompleteInvestigation("inv-1", "completed")
		writeTestExport(t, exportDir, "inv-1", map[string]int{"network": 9})

		d.RefreshAll()
		snapshot, ok := d.Get("inv-1")
		require.True(t, ok)
		assert.Equal(t, 3, snapshot.TotalFindings)
	})

	t.Run("missing files are tolerated", func(t *testing.T) {
		d.RegisterInvestigation("inv-missing", "INC-X")
		d.RefreshAll()
		snapshot, ok := d.Get("inv-missing")
		require.True(t, ok)
		assert.Equal(t, 0, snapshot.TotalFindings)
	})
}

func TestDashboardRunLoop(t *testing.T) {
	exportDir := t.TempDir()
	logDir := t.TempDir()
	d := New(exportDir, logDir, 10*time.Millisecond, nil)

	d.RegisterInvestigation("inv-1", "INC-1")
	writeTestExport(t, exportDir, "inv-1", map[string]int{"network": 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		snapshot, ok := d.Get("inv-1")
		return ok && snapshot.TotalFindings == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop on context cancellation")
	}
}

func TestExportStatusReport(t *testing.T) {
	d, _, _ := setupTestDashboard(t)
	d.RegisterInvestigation("inv-1", "INC-1")
	d.UpdateFindingsCount("inv-1", 4, map[string]int{"network": 4})

	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, d.ExportStatusReport(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var report struct {
		GeneratedAt    time.Time  `json:"generated_at"`
		Investigations []Snapshot `json:"investigations"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.False(t, report.GeneratedAt.IsZero())
	require.Len(t, report.Investigations, 1)
	assert.Equal(t, 4, report.Investigations[0].TotalFindings)
}

func TestDashboardActivities(t *testing.T) {
	d, _, logDir := setupTestDashboard(t)

	log, err := researchlog.New(logDir, "inv-1", nil)
	require.NoError(t, err)
	a, err := log.StartTask("network-analyst", "analysis", "netflow", nil)
	require.NoError(t, err)
	require.NoError(t, log.UpdateTask(a, researchlog.StatusCompleted, nil))
	require.NoError(t, log.Close())

	activities, rows, err := d.Activities("inv-1")
	require.NoError(t, err)
	require.Len(t, activities, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, "network-analyst", rows[0].AgentName)
	assert.Equal(t, "completed", rows[0].Status)
	assert.GreaterOrEqual(t, rows[0].DurationSeconds, float64(0))
}

func TestDashboardQuestions(t *testing.T) {
	d, exportDir, _ := setupTestDashboard(t)

	t.Run("v2 document", func(t *testing.T) {
		doc := &blackboard.Document{
			SchemaVersion: blackboard.SchemaVersion2,
			ExportedAt:    time.Now().UTC(),
			Investigation: blackboard.Investigation{ID: "inv-v2", Status: blackboard.StatusCompleted},
			Findings:      map[string][]*blackboard.Finding{},
			Questions: blackboard.QuestionsSection{
				Items: []blackboard.Question{
					{ID: "Q001", Category: "detection", Priority: blackboard.PriorityHigh, Question: "What happened?"},
				},
			},
		}
		data, err := doc.MarshalIndent()
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(ExportFilePath(exportDir, "inv-v2"), data, 0o644))

		questions, err := d.Questions("inv-v2")
		require.NoError(t, err)
		require.Len(t, questions, 1)
		assert.Equal(t, "Q001", questions[0].ID)
	})

	t.Run("legacy v1 document is migrated in memory", func(t *testing.T) {
		legacy := map[string]any{
			"knowledge_areas": map[string]any{
				"investigation_questions": []any{
					map[string]any{
						"data": map[string]any{
							"questions": []any{
								map[string]any{"id": "Q001", "category": "detection", "priority": "high", "question": "What happened?"},
								map[string]any{"id": "Q002", "category": "scope", "priority": "medium", "question": "What was reached?"},
							},
						},
					},
				},
			},
		}
		data, err := json.Marshal(legacy)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(ExportFilePath(exportDir, "inv-v1"), data, 0o644))

		questions, err := d.Questions("inv-v1")
		require.NoError(t, err)
		require.Len(t, questions, 2)
		assert.Equal(t, "Q002", questions[1].ID)
	})

	t.Run("unrecognized shape", func(t *testing.T) {
		require.NoError(t, os.WriteFile(ExportFilePath(exportDir, "inv-odd"), []byte(`{"foo": 1}`), 0o644))
		_, err := d.Questions("inv-odd")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := d.Questions("inv-absent")
		assert.Error(t, err)
	})
}
