package blackboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Manager creates, looks up and closes per-investigation knowledge stores.
// It owns the Redis connection shared by all stores it creates.
//
// Closing an investigation removes it from the active set; the Redis state
// (and any exported document the caller persisted) remains the only durable
// record afterward. Failed investigations are deliberately left registered
// so their raw stores can be inspected post-mortem.
type Manager struct {
	rdb    *redis.Client
	areas  []AreaSpec
	logger *zap.Logger

	mu     sync.Mutex
	active map[string]*Store
}

// NewManager creates a store manager over the given Redis options.
// Every store it creates declares the same fixed area set.
func NewManager(redisOpts *redis.Options, areas []AreaSpec, logger *zap.Logger) (*Manager, error) {
	if len(areas) == 0 {
		return nil, fmt.Errorf("at least one knowledge area must be declared")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		rdb:    redis.NewClient(redisOpts),
		areas:  areas,
		logger: logger,
		active: make(map[string]*Store),
	}, nil
}

// Ping verifies Redis connectivity. Useful for health checks.
func (m *Manager) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

// CreateInvestigation registers a new investigation and returns its store.
// Fails with ErrDuplicateInvestigation if the ID is already tracked.
func (m *Manager) CreateInvestigation(ctx context.Context, id string, caseContext CaseContext) (*Store, error) {
	if id == "" {
		return nil, fmt.Errorf("investigation ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[id]; exists {
		return nil, fmt.Errorf("investigation %q: %w", id, ErrDuplicateInvestigation)
	}

	store, err := NewStore(m.rdb, id, m.areas, m.logger)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inv := &Investigation{
		ID:          id,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      StatusActive,
		CaseContext: caseContext,
	}

	hash, err := InvestigationToHash(inv)
	if err != nil {
		return nil, err
	}
	if err := m.rdb.HSet(ctx, MetaKey(id), hash).Err(); err != nil {
		return nil, fmt.Errorf("failed to register investigation %q: %w", id, err)
	}

	m.active[id] = store
	m.logger.Info("investigation created",
		zap.String("investigation_id", id),
		zap.String("case_id", caseContext.CaseID))

	return store, nil
}

// GetInvestigation returns the store for a tracked investigation,
// or (nil, false) if the ID is not in the active set.
func (m *Manager) GetInvestigation(id string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	store, ok := m.active[id]
	return store, ok
}

// CloseInvestigation closes the investigation's store and removes it from
// the active set. Fails with ErrNotFound for untracked IDs.
func (m *Manager) CloseInvestigation(ctx context.Context, id string) error {
	m.mu.Lock()
	store, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("investigation %q: %w", id, ErrNotFound)
	}

	if err := store.Close(ctx); err != nil {
		return fmt.Errorf("failed to close investigation %q: %w", id, err)
	}

	m.logger.Info("investigation closed", zap.String("investigation_id", id))
	return nil
}

// ListActive returns the IDs of all tracked investigations, sorted.
func (m *Manager) ListActive() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases the shared Redis connection. Implements io.Closer.
// Tracked stores become unusable afterward.
func (m *Manager) Close() error {
	return m.rdb.Close()
}
