// Package monitor aggregates live status across investigations.
//
// The dashboard keeps one derived snapshot per investigation and exposes
// both a push path (subscriber callbacks fired on every update) and a pull
// path (a background refresh loop that re-derives counts from the exported
// store and research log files on disk). The dual path is deliberate: push
// for immediacy, pull for resilience against missed or out-of-order
// notifications. Snapshots are never a source of truth for findings or
// activities - they are recomputed views.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"inquest/internal/researchlog"
)

// Snapshot is the derived status view of one investigation.
type Snapshot struct {
	InvestigationID string         `json:"investigation_id"`
	CaseID          string         `json:"case_id,omitempty"`
	Phase           string         `json:"phase"`
	Status          string         `json:"status"` // active, completed, failed
	ActiveAgents    []string       `json:"active_agents"`
	TotalFindings   int            `json:"total_findings"`
	FindingsByArea  map[string]int `json:"findings_by_area,omitempty"`
	RegisteredAt    time.Time      `json:"registered_at"`
	LastActivity    time.Time      `json:"last_activity"`
	CompletedAt     time.Time      `json:"completed_at,omitempty"`
}

// Subscriber receives a copy of a snapshot after every update.
type Subscriber func(Snapshot)

// Dashboard holds one snapshot per tracked investigation.
type Dashboard struct {
	exportDir       string
	researchLogDir  string
	refreshInterval time.Duration
	logger          *zap.Logger

	mu          sync.Mutex
	snapshots   map[string]*Snapshot
	subscribers []Subscriber
}

// New creates a dashboard. exportDir and researchLogDir locate the on-disk
// files read by the pull-refresh path.
func New(exportDir, researchLogDir string, refreshInterval time.Duration, logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		exportDir:       exportDir,
		researchLogDir:  researchLogDir,
		refreshInterval: refreshInterval,
		logger:          logger,
		snapshots:       make(map[string]*Snapshot),
	}
}

// Subscribe registers a callback invoked with every snapshot update.
// Subscriber failures are contained and never reach the publisher.
func (d *Dashboard) Subscribe(sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, sub)
}

// RegisterInvestigation starts tracking an investigation.
func (d *Dashboard) RegisterInvestigation(investigationID, caseID string) {
	now := time.Now().UTC()
	d.update(investigationID, func(s *Snapshot) {
		s.CaseID = caseID
		s.Status = "active"
		s.Phase = "created"
		s.RegisteredAt = now
	})
}

// UpdatePhase records a phase transition.
func (d *Dashboard) UpdatePhase(investigationID, phase string) {
	d.update(investigationID, func(s *Snapshot) {
		s.Phase = phase
	})
}

// UpdateActiveAgents records which agents are currently running.
func (d *Dashboard) UpdateActiveAgents(investigationID string, agents []string) {
	sorted := append([]string{}, agents...)
	sort.Strings(sorted)
	d.update(investigationID, func(s *Snapshot) {
		s.ActiveAgents = sorted
	})
}

// UpdateFindingsCount records the current finding totals.
func (d *Dashboard) UpdateFindingsCount(investigationID string, total int, byArea map[string]int) {
	d.update(investigationID, func(s *Snapshot) {
		s.TotalFindings = total
		s.FindingsByArea = byArea
	})
}

// CompleteInvestigation records a terminal status (completed or failed).
func (d *Dashboard) CompleteInvestigation(investigationID, status string) {
	now := time.Now().UTC()
	d.update(investigationID, func(s *Snapshot) {
		s.Status = status
		s.Phase = status
		s.ActiveAgents = nil
		s.CompletedAt = now
	})
}

// update applies a mutation under the lock, stamps last_activity, then fans
// the updated snapshot out to every subscriber outside the lock.
func (d *Dashboard) update(investigationID string, mutate func(*Snapshot)) {
	d.mu.Lock()
	snapshot, ok := d.snapshots[investigationID]
	if !ok {
		snapshot = &Snapshot{
			InvestigationID: investigationID,
			Status:          "active",
			RegisteredAt:    time.Now().UTC(),
		}
		d.snapshots[investigationID] = snapshot
	}
	mutate(snapshot)
	snapshot.LastActivity = time.Now().UTC()

	copied := *snapshot
	subs := append([]Subscriber{}, d.subscribers...)
	d.mu.Unlock()

	for _, sub := range subs {
		d.notify(sub, copied)
	}
}

// notify invokes one subscriber, containing any panic.
func (d *Dashboard) notify(sub Subscriber, snapshot Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("dashboard subscriber panicked",
				zap.String("investigation_id", snapshot.InvestigationID),
				zap.Any("panic", r))
		}
	}()
	sub(snapshot)
}

// Get returns the snapshot for one investigation.
func (d *Dashboard) Get(investigationID string) (Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot, ok := d.snapshots[investigationID]
	if !ok {
		return Snapshot{}, false
	}
	return *snapshot, true
}

// List returns every tracked snapshot, sorted by investigation ID.
func (d *Dashboard) List() []Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := make([]Snapshot, 0, len(d.snapshots))
	for _, snapshot := range d.snapshots {
		list = append(list, *snapshot)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].InvestigationID < list[j].InvestigationID
	})
	return list
}

// Run drives the pull-refresh loop until the context is cancelled.
// Stopping the loop never affects the push path.
func (d *Dashboard) Run(ctx context.Context) {
	ticker := time.NewTicker(d.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RefreshAll()
		}
	}
}

// RefreshAll re-derives findings and active-agent state for every active
// investigation from its on-disk export and research log, independent of
// the push path. Per-investigation failures are logged and skipped.
func (d *Dashboard) RefreshAll() {
	d.mu.Lock()
	var active []string
	for id, snapshot := range d.snapshots {
		if snapshot.Status == "active" {
			active = append(active, id)
		}
	}
	d.mu.Unlock()

	for _, id := range active {
		if err := d.refreshOne(id); err != nil {
			d.logger.Debug("pull refresh skipped",
				zap.String("investigation_id", id),
				zap.Error(err))
		}
	}
}

func (d *Dashboard) refreshOne(investigationID string) error {
	total, byArea, err := readExportCounts(ExportFilePath(d.exportDir, investigationID))
	if err == nil {
		d.UpdateFindingsCount(investigationID, total, byArea)
	}

	activities, logErr := researchlog.ParseFile(researchlog.FilePath(d.researchLogDir, investigationID))
	if logErr == nil {
		agents := make(map[string]bool)
		for _, activity := range activities {
			if !activity.Status.Terminal() {
				agents[activity.AgentName] = true
			}
		}
		names := make([]string, 0, len(agents))
		for name := range agents {
			names = append(names, name)
		}
		d.UpdateActiveAgents(investigationID, names)
	}

	if err != nil {
		return err
	}
	return logErr
}

// ExportStatusReport writes a single JSON snapshot of every tracked
// investigation to disk for offline inspection.
func (d *Dashboard) ExportStatusReport(path string) error {
	report := struct {
		GeneratedAt    time.Time  `json:"generated_at"`
		Investigations []Snapshot `json:"investigations"`
	}{
		GeneratedAt:    time.Now().UTC(),
		Investigations: d.List(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write status report: %w", err)
	}
	return nil
}
