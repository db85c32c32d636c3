package coordinator

import (
	"context"
	"fmt"
	"sync"

	"inquest/internal/config"
	"inquest/pkg/blackboard"
)

// StoreHandle is the pair of store-bound functions given to a worker on
// top of whatever general-purpose capabilities it already has. All access
// goes through the investigation's own knowledge store; a worker can never
// reach another investigation's state.
type StoreHandle struct {
	store    *blackboard.Store
	producer string
}

// NewStoreHandle binds a store to a producer name.
func NewStoreHandle(store *blackboard.Store, producer string) *StoreHandle {
	return &StoreHandle{store: store, producer: producer}
}

// Write appends a finding (or merges map-area keys) as this worker.
func (h *StoreHandle) Write(ctx context.Context, area string, data map[string]any, confidence blackboard.Confidence, tags []string) (string, error) {
	return h.store.Write(ctx, area, data, h.producer, confidence, tags)
}

// Read returns one area's contents, or a full snapshot when area is empty.
func (h *StoreHandle) Read(ctx context.Context, area string, fc *blackboard.FilterCriteria) (any, error) {
	return h.store.Read(ctx, area, fc)
}

// Query scans all list areas with the given filter.
func (h *StoreHandle) Query(ctx context.Context, fc *blackboard.FilterCriteria) ([]*blackboard.Finding, error) {
	return h.store.Query(ctx, fc)
}

// InvokeRequest is everything a worker invocation receives.
type InvokeRequest struct {
	Capabilities []string     // Combined capability list, normalized at startup
	Prompt       string       // Investigation context prompt
	Store        *StoreHandle // Store-bound write/read/query functions
}

// Invoker is the external worker collaborator boundary. The reasoning
// inside a worker is opaque to the coordinator: it reads and writes the
// blackboard through the handle and returns a textual result or an error.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, req InvokeRequest) (string, error)
}

// SelectWorkers applies the worker selection policy: the configured core
// set is always selected, and the indicator worker is added only when the
// case arrived with initial indicators.
func SelectWorkers(workers config.WorkersConfig, cc blackboard.CaseContext) []string {
	selected := append([]string{}, workers.Core...)
	if workers.IndicatorWorker != "" && len(cc.InitialIndicators) > 0 {
		selected = append(selected, workers.IndicatorWorker)
	}
	return selected
}

// LazyWorker defers expensive worker setup until first use. Construction
// is cheap; EnsureReady performs the real initialization exactly once
// under a lock and every Invoke goes through it.
type LazyWorker struct {
	name    string
	factory func(ctx context.Context) (Invoker, error)

	mu       sync.Mutex
	delegate Invoker
	initErr  error
	ready    bool
}

// NewLazyWorker wraps a worker factory in a two-phase initializer.
func NewLazyWorker(name string, factory func(ctx context.Context) (Invoker, error)) *LazyWorker {
	return &LazyWorker{name: name, factory: factory}
}

// Name returns the worker's logical name.
func (w *LazyWorker) Name() string {
	return w.name
}

// EnsureReady initializes the underlying worker if it has not been
// initialized yet. Idempotent: the factory runs at most once, and its
// error (if any) is sticky.
func (w *LazyWorker) EnsureReady(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ready {
		return w.initErr
	}

	w.delegate, w.initErr = w.factory(ctx)
	w.ready = true
	if w.initErr != nil {
		w.initErr = fmt.Errorf("worker %q initialization failed: %w", w.name, w.initErr)
	}
	return w.initErr
}

// Invoke initializes the delegate on first use, then forwards the call.
func (w *LazyWorker) Invoke(ctx context.Context, req InvokeRequest) (string, error) {
	if err := w.EnsureReady(ctx); err != nil {
		return "", err
	}
	return w.delegate.Invoke(ctx, req)
}
