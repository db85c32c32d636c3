// Package coordinator orchestrates the full investigation lifecycle: it
// creates the knowledge store, writes initial context, generates the
// guiding questions, fans work out to parallel analysis workers, joins
// their results, then runs the correlation and reporting passes.
//
// Failure containment is asymmetric on purpose: a successful run closes
// its store and removes it from the active set, while any failing run
// leaves the store registered and active so it can be inspected
// post-mortem.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"inquest/internal/config"
	"inquest/internal/monitor"
	"inquest/internal/questions"
	"inquest/internal/researchlog"
	"inquest/pkg/blackboard"
)

// Phase is one state of the orchestration state machine.
type Phase string

const (
	PhaseCreated       Phase = "created"
	PhaseInitializing  Phase = "initializing"
	PhaseInvestigating Phase = "investigating"
	PhaseCorrelating   Phase = "correlating"
	PhaseReporting     Phase = "reporting"
	PhaseCompleted     Phase = "completed"
	PhaseFailed        Phase = "failed"
)

// phaseOrder fixes the only legal forward sequence. Failed is reachable
// from any non-terminal phase; Completed only from Reporting.
var phaseOrder = map[Phase]int{
	PhaseCreated:       0,
	PhaseInitializing:  1,
	PhaseInvestigating: 2,
	PhaseCorrelating:   3,
	PhaseReporting:     4,
	PhaseCompleted:     5,
}

// Session is an external tool or session handle held for the duration of
// one investigation. It must be released exactly once on every exit path.
type Session interface {
	Close() error
}

// SessionFactory acquires the session for one investigation. Optional.
type SessionFactory func(ctx context.Context, investigationID string) (Session, error)

// Deps bundles the coordinator's external collaborators. Workers,
// correlator and reporter are opaque reasoning collaborators; the
// coordinator only sequences them and contains their failures.
type Deps struct {
	Workers            map[string]Invoker
	Correlator         Invoker
	Reporter           Invoker
	QuestionReasoner   questions.Reasoner
	CapabilityReasoner questions.CapabilityReasoner
	Sessions           SessionFactory
}

// Result is what every run yields, success or failure. A failed
// investigation still carries its exported store, statistics and explicit
// error fields - never a bare error.
type Result struct {
	InvestigationID string                 `json:"investigation_id"`
	Phase           Phase                  `json:"phase"`
	Statistics      *blackboard.Statistics `json:"statistics,omitempty"`
	Report          string                 `json:"report,omitempty"`
	Export          *blackboard.Document   `json:"export,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ErrorType       string                 `json:"error_type,omitempty"`
}

// Coordinator runs investigations end to end.
type Coordinator struct {
	manager   *blackboard.Manager
	dashboard *monitor.Dashboard
	cfg       *config.Config
	deps      Deps
	generator *questions.Generator
	hierarchy *questions.HierarchyProcessor
	mapper    *questions.ToolMapper
	logger    *zap.Logger
}

// New wires a coordinator. All dependencies are passed down explicitly;
// nothing is registered through package-level state.
func New(manager *blackboard.Manager, dashboard *monitor.Dashboard, cfg *config.Config, deps Deps, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		manager:   manager,
		dashboard: dashboard,
		cfg:       cfg,
		deps:      deps,
		generator: questions.NewGenerator(deps.QuestionReasoner, logger),
		hierarchy: questions.NewHierarchyProcessor(cfg.Hierarchy.Lexicon),
		mapper:    questions.NewToolMapper(deps.CapabilityReasoner, cfg.Capabilities, logger),
		logger:    logger,
	}
}

// run tracks one investigation's progress through the state machine.
type run struct {
	id    string
	phase Phase
	store *blackboard.Store
	rlog  *researchlog.Log
}

// advance moves to the next phase, enforcing the no-skip, no-re-entry
// contract. Transitioning out of order is a programming error.
func (r *run) advance(to Phase) error {
	if to == PhaseFailed {
		r.phase = PhaseFailed
		return nil
	}
	if phaseOrder[to] != phaseOrder[r.phase]+1 {
		return fmt.Errorf("illegal phase transition %s -> %s", r.phase, to)
	}
	r.phase = to
	return nil
}

// Run executes one investigation. Creation-time contract violations
// (duplicate investigation ID) are returned as errors; every later
// failure is folded into the Result with the store retained for
// inspection.
func (c *Coordinator) Run(ctx context.Context, cc blackboard.CaseContext) (*Result, error) {
	id := cc.CaseID
	if id == "" {
		id = uuid.New().String()
	}

	store, err := c.manager.CreateInvestigation(ctx, id, cc)
	if err != nil {
		return nil, err
	}

	result := &Result{InvestigationID: id, Phase: PhaseCreated}
	r := &run{id: id, phase: PhaseCreated, store: store}

	c.dashboard.RegisterInvestigation(id, cc.CaseID)

	rlog, err := researchlog.New(c.cfg.Paths.ResearchLogDir, id, c.logger)
	if err != nil {
		return c.failRun(ctx, r, result, "research_log_error", err), nil
	}
	r.rlog = rlog
	defer rlog.Close()

	// Session handles are released exactly once on every exit path.
	var closeSession func()
	if c.deps.Sessions != nil {
		session, err := c.deps.Sessions(ctx, id)
		if err != nil {
			return c.failRun(ctx, r, result, "session_error", err), nil
		}
		var once sync.Once
		closeSession = func() {
			once.Do(func() {
				if err := session.Close(); err != nil {
					c.logger.Warn("session close failed",
						zap.String("investigation_id", id), zap.Error(err))
				}
			})
		}
		defer closeSession()
	}

	// Initializing: seed the store with context and questions.
	if err := c.enterPhase(r, PhaseInitializing); err != nil {
		return c.failRun(ctx, r, result, "phase_error", err), nil
	}
	if err := c.initialize(ctx, r, cc); err != nil {
		return c.failRun(ctx, r, result, "initialization_error", err), nil
	}

	// Investigating: fan out to all selected workers and join.
	if err := c.enterPhase(r, PhaseInvestigating); err != nil {
		return c.failRun(ctx, r, result, "phase_error", err), nil
	}
	c.investigate(ctx, r, cc)

	// Correlating: exactly once, over the full store. Its failure
	// degrades the report; it never vetoes the investigation.
	if err := c.enterPhase(r, PhaseCorrelating); err != nil {
		return c.failRun(ctx, r, result, "phase_error", err), nil
	}
	c.correlate(ctx, r)

	// Reporting: exactly once; failure falls back to the raw export.
	if err := c.enterPhase(r, PhaseReporting); err != nil {
		return c.failRun(ctx, r, result, "phase_error", err), nil
	}
	report, reportErr := c.report(ctx, r)
	if reportErr != nil {
		result.Error = reportErr.Error()
		result.ErrorType = "report_failure"
	} else {
		result.Report = report
	}

	doc, err := c.exportToDisk(ctx, r)
	if err != nil {
		return c.failRun(ctx, r, result, "export_error", err), nil
	}
	result.Export = doc

	if stats, err := store.Statistics(ctx); err == nil {
		result.Statistics = stats
		c.dashboard.UpdateFindingsCount(id, stats.TotalFindings, stats.ByArea)
	}

	// Clean up on success, retain on failure.
	if err := r.advance(PhaseCompleted); err != nil {
		return c.failRun(ctx, r, result, "phase_error", err), nil
	}
	if err := c.manager.CloseInvestigation(ctx, id); err != nil {
		return c.failRun(ctx, r, result, "close_error", err), nil
	}
	c.dashboard.CompleteInvestigation(id, "completed")

	result.Phase = PhaseCompleted
	c.logger.Info("investigation completed",
		zap.String("investigation_id", id),
		zap.Int("total_findings", totalOf(result.Statistics)))
	return result, nil
}

func totalOf(stats *blackboard.Statistics) int {
	if stats == nil {
		return 0
	}
	return stats.TotalFindings
}

func (c *Coordinator) enterPhase(r *run, phase Phase) error {
	if err := r.advance(phase); err != nil {
		return err
	}
	c.dashboard.UpdatePhase(r.id, string(phase))
	c.logger.Info("phase entered",
		zap.String("investigation_id", r.id),
		zap.String("phase", string(phase)))
	return nil
}

// initialize writes the initial indicators as metadata findings, the
// investigation parameters as a map-area merge, and the fully processed
// question set. Store contract violations here are hard failures.
func (c *Coordinator) initialize(ctx context.Context, r *run, cc blackboard.CaseContext) error {
	for _, indicator := range cc.InitialIndicators {
		data := map[string]any{
			"indicator_type":  indicator.Type,
			"indicator_value": indicator.Value,
			"source":          "initial",
		}
		if _, err := r.store.Write(ctx, blackboard.AreaMetadata, data, "coordinator", blackboard.ConfidenceHigh, []string{"initial_indicator"}); err != nil {
			return fmt.Errorf("failed to write initial indicator: %w", err)
		}
	}

	params := map[string]any{
		"priority":           cc.Priority,
		"data_sources":       cc.DataSources,
		"investigation_type": cc.InvestigationType,
		"timeframe":          cc.Timeframe,
	}
	if _, err := r.store.Write(ctx, blackboard.AreaInvestigationMeta, params, "coordinator", blackboard.ConfidenceHigh, nil); err != nil {
		return fmt.Errorf("failed to write investigation parameters: %w", err)
	}

	// Generation and hierarchy expansion run before capability mapping so
	// question coverage is never biased by available tooling.
	qs := c.generator.Generate(ctx, cc)
	qs = c.hierarchy.Process(qs)
	qs = c.mapper.Map(ctx, qs)
	if err := r.store.SetQuestions(ctx, qs); err != nil {
		return fmt.Errorf("failed to store questions: %w", err)
	}

	c.logger.Info("investigation initialized",
		zap.String("investigation_id", r.id),
		zap.Int("indicators", len(cc.InitialIndicators)),
		zap.Int("questions", len(qs)))
	return nil
}

// investigate launches every selected worker concurrently and blocks at
// the join barrier until all of them reach a terminal state. A worker's
// failure is caught, logged as a metadata finding, and never aborts its
// siblings or the phase.
func (c *Coordinator) investigate(ctx context.Context, r *run, cc blackboard.CaseContext) {
	selected := SelectWorkers(c.cfg.Workers, cc)
	prompt := c.buildPrompt(ctx, r, cc)
	timeout := time.Duration(c.cfg.Workers.TimeoutSeconds) * time.Second

	var activeMu sync.Mutex
	active := make(map[string]bool)
	setActive := func(name string, on bool) {
		activeMu.Lock()
		if on {
			active[name] = true
		} else {
			delete(active, name)
		}
		names := make([]string, 0, len(active))
		for n := range active {
			names = append(names, n)
		}
		sort.Strings(names)
		activeMu.Unlock()
		c.dashboard.UpdateActiveAgents(r.id, names)
	}

	var g errgroup.Group
	for _, name := range selected {
		name := name
		g.Go(func() error {
			setActive(name, true)
			defer setActive(name, false)
			c.runWorker(ctx, r, name, prompt, timeout)
			return nil // failures are contained, never propagated
		})
	}

	// Join barrier: correlation must not start before every worker has
	// terminated, successfully or otherwise.
	_ = g.Wait()

	if stats, err := r.store.Statistics(ctx); err == nil {
		c.dashboard.UpdateFindingsCount(r.id, stats.TotalFindings, stats.ByArea)
	}
}

// runWorker executes one worker invocation with a timeout, recording its
// lifecycle in the research log and converting any failure into an
// investigator_error metadata finding.
func (c *Coordinator) runWorker(ctx context.Context, r *run, name, prompt string, timeout time.Duration) {
	activityID, err := r.rlog.StartTask(name, "investigation", "parallel analysis pass", nil)
	if err != nil {
		c.logger.Warn("failed to log task start",
			zap.String("agent", name), zap.Error(err))
	}

	invoker, ok := c.deps.Workers[name]
	var output string
	if !ok {
		err = fmt.Errorf("no worker registered under name %q", name)
	} else {
		output, err = c.invokeWithTimeout(ctx, invoker, InvokeRequest{
			Capabilities: c.cfg.Capabilities.Available,
			Prompt:       prompt,
			Store:        NewStoreHandle(r.store, name),
		}, timeout)
	}

	if err != nil {
		c.recordWorkerError(ctx, r, name, "investigation", err)
		if activityID != "" {
			_ = r.rlog.UpdateTask(activityID, researchlog.StatusFailed, map[string]any{"error": err.Error()})
		}
		_ = r.store.RecordAgentRun(ctx, name, "failed")
		return
	}

	if activityID != "" {
		_ = r.rlog.UpdateTask(activityID, researchlog.StatusCompleted, map[string]any{"result_chars": len(output)})
	}
	_ = r.store.RecordAgentRun(ctx, name, "completed")
}

// invokeWithTimeout bounds one worker invocation. A worker that never
// terminates is abandoned at the deadline and treated as a caught failure
// so it cannot stall the join barrier.
func (c *Coordinator) invokeWithTimeout(ctx context.Context, invoker Invoker, req InvokeRequest, timeout time.Duration) (string, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		var out outcome
		defer func() {
			if rec := recover(); rec != nil {
				out = outcome{err: fmt.Errorf("worker panicked: %v", rec)}
			}
			done <- out
		}()
		out.output, out.err = invoker.Invoke(wctx, req)
	}()

	select {
	case out := <-done:
		return out.output, out.err
	case <-wctx.Done():
		return "", fmt.Errorf("worker %q timed out after %s: %w", invoker.Name(), timeout, wctx.Err())
	}
}

// recordWorkerError converts a contained failure into a metadata finding.
// The exporter lifts these into processing.errors.
func (c *Coordinator) recordWorkerError(ctx context.Context, r *run, agent, operation string, cause error) {
	c.logger.Warn("worker failure contained",
		zap.String("investigation_id", r.id),
		zap.String("agent", agent),
		zap.String("operation", operation),
		zap.Error(cause))

	data := map[string]any{
		"operation":  operation,
		"error_type": "worker_failure",
		"message":    cause.Error(),
		"context":    fmt.Sprintf("%s phase for investigation %s", operation, r.id),
	}
	if operation != "investigation" {
		data["error_type"] = operation + "_failure"
	}

	if _, err := r.store.Write(ctx, blackboard.AreaMetadata, data, agent, blackboard.ConfidenceMedium, []string{blackboard.TagInvestigatorError}); err != nil {
		c.logger.Error("failed to record worker error",
			zap.String("agent", agent), zap.Error(err))
	}
}

// correlate runs the correlation pass exactly once over the full store.
func (c *Coordinator) correlate(ctx context.Context, r *run) {
	if c.deps.Correlator == nil {
		return
	}

	activityID, _ := r.rlog.StartTask(c.deps.Correlator.Name(), "correlation", "cross-area correlation pass", nil)

	timeout := time.Duration(c.cfg.Workers.TimeoutSeconds) * time.Second
	output, err := c.invokeWithTimeout(ctx, c.deps.Correlator, InvokeRequest{
		Capabilities: c.cfg.Capabilities.Available,
		Prompt:       "Correlate all findings across knowledge areas and record inferred patterns.",
		Store:        NewStoreHandle(r.store, c.deps.Correlator.Name()),
	}, timeout)

	if err != nil {
		c.recordWorkerError(ctx, r, c.deps.Correlator.Name(), "correlation", err)
		if activityID != "" {
			_ = r.rlog.UpdateTask(activityID, researchlog.StatusFailed, map[string]any{"error": err.Error()})
		}
		_ = r.store.RecordAgentRun(ctx, c.deps.Correlator.Name(), "failed")
		return
	}

	if activityID != "" {
		_ = r.rlog.UpdateTask(activityID, researchlog.StatusCompleted, map[string]any{"result_chars": len(output)})
	}
	_ = r.store.RecordAgentRun(ctx, c.deps.Correlator.Name(), "completed")
}

// report runs the reporting pass exactly once and returns its output.
func (c *Coordinator) report(ctx context.Context, r *run) (string, error) {
	if c.deps.Reporter == nil {
		return "", nil
	}

	activityID, _ := r.rlog.StartTask(c.deps.Reporter.Name(), "report", "final summary pass", nil)

	timeout := time.Duration(c.cfg.Workers.TimeoutSeconds) * time.Second
	output, err := c.invokeWithTimeout(ctx, c.deps.Reporter, InvokeRequest{
		Capabilities: c.cfg.Capabilities.Available,
		Prompt:       "Produce the final investigation summary from the full knowledge store.",
		Store:        NewStoreHandle(r.store, c.deps.Reporter.Name()),
	}, timeout)

	if err != nil {
		if activityID != "" {
			_ = r.rlog.UpdateTask(activityID, researchlog.StatusFailed, map[string]any{"error": err.Error()})
		}
		_ = r.store.RecordAgentRun(ctx, c.deps.Reporter.Name(), "failed")
		return "", err
	}

	if activityID != "" {
		_ = r.rlog.UpdateTask(activityID, researchlog.StatusCompleted, map[string]any{"result_chars": len(output)})
	}
	_ = r.store.RecordAgentRun(ctx, c.deps.Reporter.Name(), "completed")
	return output, nil
}

// buildPrompt renders the investigation context prompt handed to workers.
func (c *Coordinator) buildPrompt(ctx context.Context, r *run, cc blackboard.CaseContext) string {
	prompt := fmt.Sprintf("Investigation %s", r.id)
	if cc.Title != "" {
		prompt += ": " + cc.Title
	}
	if cc.Priority != "" {
		prompt += fmt.Sprintf(" (priority %s)", cc.Priority)
	}
	if qs, err := r.store.Questions(ctx); err == nil && len(qs) > 0 {
		prompt += fmt.Sprintf(". Guiding questions: %d. Answer what your capabilities allow and write findings to the appropriate areas.", len(qs))
	}
	return prompt
}

// exportToDisk snapshots the store to the export directory. The exported
// file is the durable record and the monitor pull path's data source.
func (c *Coordinator) exportToDisk(ctx context.Context, r *run) (*blackboard.Document, error) {
	doc, err := r.store.Export(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.cfg.Paths.ExportDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	data, err := doc.MarshalIndent()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(c.cfg.Paths.ExportDir, r.id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export file: %w", err)
	}
	return doc, nil
}

// failRun records a terminal failure: the status flips to failed, the
// store stays registered for post-mortem inspection, and whatever export
// and statistics can still be produced are attached to the result.
func (c *Coordinator) failRun(ctx context.Context, r *run, result *Result, errType string, cause error) *Result {
	c.logger.Error("investigation failed",
		zap.String("investigation_id", r.id),
		zap.String("phase", string(r.phase)),
		zap.String("error_type", errType),
		zap.Error(cause))

	_ = r.advance(PhaseFailed)
	result.Phase = PhaseFailed
	result.Error = cause.Error()
	result.ErrorType = errType

	if err := r.store.SetStatus(ctx, blackboard.StatusFailed); err != nil {
		c.logger.Warn("failed to mark investigation failed", zap.Error(err))
	}

	// Best-effort export and statistics so a failed run still yields its
	// full raw store for diagnosis.
	if doc, err := c.exportToDisk(ctx, r); err == nil {
		result.Export = doc
	}
	if stats, err := r.store.Statistics(ctx); err == nil {
		result.Statistics = stats
	}

	c.dashboard.CompleteInvestigation(r.id, "failed")
	return result
}
