package researchlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLog(t *testing.T) *Log {
	t.Helper()

	log, err := New(t.TempDir(), "inv-test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestNew(t *testing.T) {
	t.Run("requires investigation ID", func(t *testing.T) {
		_, err := New(t.TempDir(), "", nil)
		assert.Error(t, err)
	})

	t.Run("creates the directory and file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "logs")
		log, err := New(dir, "inv-1", nil)
		require.NoError(t, err)
		defer log.Close()

		assert.Equal(t, FilePath(dir, "inv-1"), log.Path())
		_, err = os.Stat(log.Path())
		assert.NoError(t, err)
	})
}

func TestStartAndUpdateTask(t *testing.T) {
	log := setupTestLog(t)

	id, err := log.StartTask("network-analyst", "analysis", "scanning netflow", map[string]any{"batch": float64(1)})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	t.Run("started task is active", func(t *testing.T) {
		active := log.ActiveTasks()
		require.Contains(t, active, "network-analyst")
		assert.Equal(t, id, active["network-analyst"].ActivityID)
		assert.Equal(t, StatusStarted, active["network-analyst"].Status)
	})

	t.Run("progress update keeps it active", func(t *testing.T) {
		require.NoError(t, log.UpdateTask(id, StatusInProgress, map[string]any{"progress": "half"}))
		active := log.ActiveTasks()
		require.Contains(t, active, "network-analyst")
		assert.Equal(t, StatusInProgress, active["network-analyst"].Status)
		assert.Equal(t, "half", active["network-analyst"].Metadata["progress"])
		assert.Equal(t, float64(1), active["network-analyst"].Metadata["batch"])
	})

	t.Run("completion fixes duration and clears the active pointer", func(t *testing.T) {
		require.NoError(t, log.UpdateTask(id, StatusCompleted, nil))

		active := log.ActiveTasks()
		assert.NotContains(t, active, "network-analyst")

		history := log.History("network-analyst")
		require.Len(t, history, 1)
		assert.Equal(t, StatusCompleted, history[0].Status)
		assert.False(t, history[0].EndTime.IsZero())
		assert.GreaterOrEqual(t, history[0].DurationSeconds, float64(0))
	})

	t.Run("unknown activity", func(t *testing.T) {
		err := log.UpdateTask("no-such-id", StatusCompleted, nil)
		assert.Error(t, err)
	})

	t.Run("invalid status", func(t *testing.T) {
		err := log.UpdateTask(id, "paused", nil)
		assert.Error(t, err)
	})
}

func TestStartTask_ReplacesActivePointer(t *testing.T) {
	log := setupTestLog(t)

	first, err := log.StartTask("triage-analyst", "triage", "first pass", nil)
	require.NoError(t, err)
	second, err := log.StartTask("triage-analyst", "triage", "second pass", nil)
	require.NoError(t, err)

	active := log.ActiveTasks()
	require.Contains(t, active, "triage-analyst")
	assert.Equal(t, second, active["triage-analyst"].ActivityID)

	// Finishing the superseded task does not clear the newer pointer.
	require.NoError(t, log.UpdateTask(first, StatusFailed, nil))
	active = log.ActiveTasks()
	require.Contains(t, active, "triage-analyst")
	assert.Equal(t, second, active["triage-analyst"].ActivityID)
}

func TestHistory(t *testing.T) {
	log := setupTestLog(t)

	_, err := log.StartTask("network-analyst", "analysis", "netflow", nil)
	require.NoError(t, err)
	_, err = log.StartTask("endpoint-analyst", "analysis", "process tree", nil)
	require.NoError(t, err)

	t.Run("all agents", func(t *testing.T) {
		assert.Len(t, log.History(""), 2)
	})

	t.Run("one agent", func(t *testing.T) {
		history := log.History("endpoint-analyst")
		require.Len(t, history, 1)
		assert.Equal(t, "endpoint-analyst", history[0].AgentName)
	})
}

func TestSummarize(t *testing.T) {
	log := setupTestLog(t)

	a, err := log.StartTask("network-analyst", "analysis", "netflow", nil)
	require.NoError(t, err)
	b, err := log.StartTask("endpoint-analyst", "analysis", "process tree", nil)
	require.NoError(t, err)
	_, err = log.StartTask("intel-analyst", "enrichment", "reputation", nil)
	require.NoError(t, err)

	require.NoError(t, log.UpdateTask(a, StatusCompleted, nil))
	require.NoError(t, log.UpdateTask(b, StatusFailed, nil))

	summary := log.Summarize()
	assert.Equal(t, 3, summary.TotalActivities)
	assert.Equal(t, 1, summary.ByStatus["completed"])
	assert.Equal(t, 1, summary.ByStatus["failed"])
	assert.Equal(t, 1, summary.ByStatus["started"])
	assert.Equal(t, 2, summary.ByTaskType["analysis"])
	assert.Equal(t, 0.5, summary.SuccessRate)
	assert.Equal(t, []string{"endpoint-analyst", "intel-analyst", "network-analyst"}, summary.Agents)
	assert.GreaterOrEqual(t, summary.WallClockSeconds, float64(0))
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	log, err := New(dir, "inv-parse", nil)
	require.NoError(t, err)

	a, err := log.StartTask("network-analyst", "analysis", "netflow", nil)
	require.NoError(t, err)
	b, err := log.StartTask("endpoint-analyst", "analysis", "triage", nil)
	require.NoError(t, err)
	require.NoError(t, log.UpdateTask(a, StatusInProgress, nil))
	require.NoError(t, log.UpdateTask(a, StatusCompleted, nil))
	require.NoError(t, log.Close())

	t.Run("replays the latest snapshot per activity", func(t *testing.T) {
		activities, err := ParseFile(FilePath(dir, "inv-parse"))
		require.NoError(t, err)
		require.Len(t, activities, 2)

		assert.Equal(t, a, activities[0].ActivityID)
		assert.Equal(t, StatusCompleted, activities[0].Status)
		assert.Equal(t, b, activities[1].ActivityID)
		assert.Equal(t, StatusStarted, activities[1].Status)
	})

	t.Run("tolerates a torn final line", func(t *testing.T) {
		path := FilePath(dir, "inv-parse")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString(`{"activity_id": "torn`)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		activities, err := ParseFile(path)
		require.NoError(t, err)
		assert.Len(t, activities, 2)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := ParseFile(FilePath(dir, "no-such-investigation"))
		assert.Error(t, err)
	})
}
