// Package researchlog records the lifecycle of worker tasks as an
// append-only activity ledger. Every state change is appended to a JSONL
// file as a full activity snapshot (one object per line, never a diff), so
// the on-disk log can be replayed without the process that wrote it.
package researchlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActivityStatus is the lifecycle state of one logged task.
type ActivityStatus string

const (
	StatusStarted    ActivityStatus = "started"
	StatusInProgress ActivityStatus = "in_progress"
	StatusCompleted  ActivityStatus = "completed"
	StatusFailed     ActivityStatus = "failed"
)

// Terminal returns true for statuses that end a task.
func (s ActivityStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Validate checks if the ActivityStatus is a valid enum value.
func (s ActivityStatus) Validate() error {
	switch s {
	case StatusStarted, StatusInProgress, StatusCompleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown activity status: %q", s)
	}
}

// Activity is one worker task record.
type Activity struct {
	ActivityID      string         `json:"activity_id"`
	AgentName       string         `json:"agent_name"`
	InvestigationID string         `json:"investigation_id"`
	TaskType        string         `json:"task_type"`
	Status          ActivityStatus `json:"status"`
	Description     string         `json:"description"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time,omitempty"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Summary aggregates one log instance's history.
type Summary struct {
	TotalActivities  int            `json:"total_activities"`
	ByStatus         map[string]int `json:"by_status"`
	ByTaskType       map[string]int `json:"by_task_type"`
	SuccessRate      float64        `json:"success_rate"`
	Agents           []string       `json:"agents"`
	WallClockSeconds float64        `json:"wall_clock_seconds"`
}

// Log is one investigation's activity ledger. All operations on one
// instance are serialized through a single mutex so near-simultaneous
// updates cannot corrupt the one-active-task-per-agent invariant.
type Log struct {
	investigationID string
	path            string
	logger          *zap.Logger

	mu         sync.Mutex
	file       *os.File
	activities map[string]*Activity // activityID -> latest state
	order      []string             // activityIDs in start order
	active     map[string]string    // agentName -> active activityID
}

// New creates a research log for one investigation, appending to
// {dir}/{investigationID}.jsonl (the directory is created if needed).
func New(dir, investigationID string, logger *zap.Logger) (*Log, error) {
	if investigationID == "" {
		return nil, fmt.Errorf("investigation ID cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create research log directory: %w", err)
	}

	path := FilePath(dir, investigationID)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open research log file: %w", err)
	}

	return &Log{
		investigationID: investigationID,
		path:            path,
		logger:          logger.With(zap.String("investigation_id", investigationID)),
		file:            file,
		activities:      make(map[string]*Activity),
		active:          make(map[string]string),
	}, nil
}

// FilePath returns the research log file path for an investigation.
func FilePath(dir, investigationID string) string {
	return filepath.Join(dir, investigationID+".jsonl")
}

// Path returns this log's on-disk file path.
func (l *Log) Path() string {
	return l.path
}

// StartTask records a new task in the started state and makes it the active
// task for the agent, replacing any prior active-task pointer for that name.
// The snapshot is appended to the durable log immediately.
func (l *Log) StartTask(agentName, taskType, description string, metadata map[string]any) (string, error) {
	if agentName == "" {
		return "", fmt.Errorf("agent name cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	activity := &Activity{
		ActivityID:      uuid.New().String(),
		AgentName:       agentName,
		InvestigationID: l.investigationID,
		TaskType:        taskType,
		Status:          StatusStarted,
		Description:     description,
		StartTime:       time.Now().UTC(),
		Metadata:        metadata,
	}

	if err := l.appendLocked(activity); err != nil {
		return "", err
	}

	l.activities[activity.ActivityID] = activity
	l.order = append(l.order, activity.ActivityID)
	l.active[agentName] = activity.ActivityID

	return activity.ActivityID, nil
}

// UpdateTask transitions a task's status, merging any metadata. A terminal
// status fixes duration = end - start and clears the agent's active-task
// pointer if it still points at this activity. Every update appends a new
// snapshot line to the durable log.
func (l *Log) UpdateTask(activityID string, status ActivityStatus, metadataMerge map[string]any) error {
	if err := status.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	activity, ok := l.activities[activityID]
	if !ok {
		return fmt.Errorf("unknown activity %q", activityID)
	}

	activity.Status = status
	if len(metadataMerge) > 0 {
		if activity.Metadata == nil {
			activity.Metadata = make(map[string]any, len(metadataMerge))
		}
		for k, v := range metadataMerge {
			activity.Metadata[k] = v
		}
	}

	if status.Terminal() {
		activity.EndTime = time.Now().UTC()
		activity.DurationSeconds = activity.EndTime.Sub(activity.StartTime).Seconds()
		if l.active[activity.AgentName] == activityID {
			delete(l.active, activity.AgentName)
		}
	}

	return l.appendLocked(activity)
}

// appendLocked writes one full activity snapshot as a JSONL line.
func (l *Log) appendLocked(activity *Activity) error {
	line, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to research log: %w", err)
	}
	return nil
}

// ActiveTasks returns a copy of the current agent -> active activity map.
func (l *Log) ActiveTasks() map[string]Activity {
	l.mu.Lock()
	defer l.mu.Unlock()

	tasks := make(map[string]Activity, len(l.active))
	for agent, id := range l.active {
		if activity, ok := l.activities[id]; ok {
			tasks[agent] = *activity
		}
	}
	return tasks
}

// History returns activity snapshots ordered by start time. An empty agent
// name returns every activity; otherwise only that agent's.
func (l *Log) History(agentName string) []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()

	var history []Activity
	for _, id := range l.order {
		activity := l.activities[id]
		if agentName != "" && activity.AgentName != agentName {
			continue
		}
		history = append(history, *activity)
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].StartTime.Before(history[j].StartTime)
	})
	return history
}

// Summarize aggregates the log's full history.
func (l *Log) Summarize() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := Summary{
		ByStatus:   make(map[string]int),
		ByTaskType: make(map[string]int),
	}

	agents := make(map[string]bool)
	var earliest, latest time.Time
	completed, failed := 0, 0

	for _, id := range l.order {
		activity := l.activities[id]
		summary.TotalActivities++
		summary.ByStatus[string(activity.Status)]++
		summary.ByTaskType[activity.TaskType]++
		agents[activity.AgentName] = true

		switch activity.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}

		if earliest.IsZero() || activity.StartTime.Before(earliest) {
			earliest = activity.StartTime
		}
		end := activity.EndTime
		if end.IsZero() {
			end = activity.StartTime
		}
		if end.After(latest) {
			latest = end
		}
	}

	if completed+failed > 0 {
		summary.SuccessRate = float64(completed) / float64(completed+failed)
	}
	if !earliest.IsZero() {
		summary.WallClockSeconds = latest.Sub(earliest).Seconds()
	}

	for agent := range agents {
		summary.Agents = append(summary.Agents, agent)
	}
	sort.Strings(summary.Agents)

	return summary
}

// Close releases the underlying log file. Implements io.Closer.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ParseFile replays a research log file and returns the latest snapshot of
// every activity, in first-seen order. Used by the monitor's pull-refresh
// path, which reads the file independently of the process that wrote it.
func ParseFile(path string) ([]Activity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open research log file: %w", err)
	}
	defer file.Close()

	latest := make(map[string]*Activity)
	var order []string

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var activity Activity
		if err := json.Unmarshal(line, &activity); err != nil {
			// A torn final line from a crashed writer is tolerated.
			continue
		}

		if _, seen := latest[activity.ActivityID]; !seen {
			order = append(order, activity.ActivityID)
		}
		snapshot := activity
		latest[activity.ActivityID] = &snapshot
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read research log file: %w", err)
	}

	activities := make([]Activity, 0, len(order))
	for _, id := range order {
		activities = append(activities, *latest[id])
	}
	return activities, nil
}
