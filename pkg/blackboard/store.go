package blackboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is one investigation's typed, area-partitioned knowledge store.
//
// All mutable-state operations on a single store are serialized through one
// mutex: concurrent writers queue rather than interleave, and readers always
// observe fully-written findings. Operations on different investigations
// never block each other.
type Store struct {
	rdb             *redis.Client
	investigationID string
	areas           map[string]AreaKind
	areaOrder       []string // Declared order, used for deterministic scans
	logger          *zap.Logger

	mu          sync.Mutex
	closed      bool
	subscribers map[string][]func(*Finding)
}

// NewStore creates a store for one investigation over the given Redis
// client. The area set is fixed for the lifetime of the store; writes to
// any other area fail with ErrUnknownArea.
func NewStore(rdb *redis.Client, investigationID string, areas []AreaSpec, logger *zap.Logger) (*Store, error) {
	if investigationID == "" {
		return nil, fmt.Errorf("investigation ID cannot be empty")
	}
	if len(areas) == 0 {
		return nil, fmt.Errorf("at least one knowledge area must be declared")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	areaKinds := make(map[string]AreaKind, len(areas))
	areaOrder := make([]string, 0, len(areas))
	for _, spec := range areas {
		if err := spec.Kind.Validate(); err != nil {
			return nil, fmt.Errorf("area %q: %w", spec.Name, err)
		}
		if _, dup := areaKinds[spec.Name]; dup {
			return nil, fmt.Errorf("area %q declared twice", spec.Name)
		}
		areaKinds[spec.Name] = spec.Kind
		areaOrder = append(areaOrder, spec.Name)
	}

	return &Store{
		rdb:             rdb,
		investigationID: investigationID,
		areas:           areaKinds,
		areaOrder:       areaOrder,
		logger:          logger.With(zap.String("investigation_id", investigationID)),
		subscribers:     make(map[string][]func(*Finding)),
	}, nil
}

// InvestigationID returns the ID of the investigation this store belongs to.
func (s *Store) InvestigationID() string {
	return s.investigationID
}

// Areas returns the declared area specs in declaration order.
func (s *Store) Areas() []AreaSpec {
	specs := make([]AreaSpec, 0, len(s.areaOrder))
	for _, name := range s.areaOrder {
		specs = append(specs, AreaSpec{Name: name, Kind: s.areas[name]})
	}
	return specs
}

// Write records a payload into a knowledge area and returns the finding ID.
//
// For list areas a new immutable Finding is appended with a generated UUID.
// For map areas the payload keys are merged into the area's state and a
// synthetic ID is returned. Every write bumps the investigation's
// last-updated timestamp. After a successful write, subscribers for the
// area are notified and the full finding JSON is published to the
// investigation's finding-events channel; neither can fail the write.
func (s *Store) Write(ctx context.Context, area string, data map[string]any, producer string, confidence Confidence, tags []string) (string, error) {
	s.mu.Lock()
	finding, err := s.writeLocked(ctx, area, data, producer, confidence, tags)
	var subs []func(*Finding)
	if err == nil {
		subs = append(subs, s.subscribers[area]...)
	}
	s.mu.Unlock()

	if err != nil {
		return "", err
	}

	s.publishFinding(ctx, finding)
	for _, cb := range subs {
		s.notifySubscriber(cb, finding)
	}

	return finding.ID, nil
}

// writeLocked performs the mutation under the store mutex.
func (s *Store) writeLocked(ctx context.Context, area string, data map[string]any, producer string, confidence Confidence, tags []string) (*Finding, error) {
	if s.closed {
		return nil, fmt.Errorf("write to area %q: %w", area, ErrStoreClosed)
	}

	kind, ok := s.areas[area]
	if !ok {
		return nil, fmt.Errorf("write to area %q: %w", area, ErrUnknownArea)
	}

	seq, err := s.rdb.Incr(ctx, SeqKey(s.investigationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate write sequence: %w", err)
	}

	now := time.Now().UTC()
	if tags == nil {
		tags = []string{}
	}

	finding := &Finding{
		Seq:        seq,
		Timestamp:  now,
		Producer:   producer,
		Area:       area,
		Data:       data,
		Confidence: confidence,
		Tags:       tags,
	}

	switch kind {
	case AreaKindList:
		finding.ID = uuid.New().String()
		if err := finding.Validate(); err != nil {
			return nil, fmt.Errorf("invalid finding: %w", err)
		}

		hash, err := FindingToHash(finding)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize finding: %w", err)
		}

		if err := s.rdb.HSet(ctx, FindingKey(s.investigationID, finding.ID), hash).Err(); err != nil {
			return nil, fmt.Errorf("failed to write finding: %w", err)
		}
		if err := s.rdb.RPush(ctx, AreaListKey(s.investigationID, area), finding.ID).Err(); err != nil {
			return nil, fmt.Errorf("failed to append finding to area %q: %w", area, err)
		}

	case AreaKindMap:
		// Map areas merge payload keys instead of appending findings.
		finding.ID = fmt.Sprintf("merge-%s-%d", area, seq)
		if err := finding.Validate(); err != nil {
			return nil, fmt.Errorf("invalid finding: %w", err)
		}

		fields := make(map[string]interface{}, len(data))
		for key, value := range data {
			valueJSON, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal map value %q: %w", key, err)
			}
			fields[key] = string(valueJSON)
		}
		if len(fields) > 0 {
			if err := s.rdb.HSet(ctx, AreaMapKey(s.investigationID, area), fields).Err(); err != nil {
				return nil, fmt.Errorf("failed to merge into area %q: %w", area, err)
			}
		}
	}

	if err := s.rdb.HSet(ctx, MetaKey(s.investigationID), "updated_at", now.UnixMilli()).Err(); err != nil {
		return nil, fmt.Errorf("failed to update investigation metadata: %w", err)
	}

	return finding, nil
}

// publishFinding publishes the finding JSON to the events channel.
// Publish failure is logged but never fails an already-committed write.
func (s *Store) publishFinding(ctx context.Context, finding *Finding) {
	findingJSON, err := json.Marshal(finding)
	if err != nil {
		s.logger.Warn("failed to marshal finding for event", zap.Error(err))
		return
	}

	channel := FindingEventsChannel(s.investigationID)
	if err := s.rdb.Publish(ctx, channel, findingJSON).Err(); err != nil {
		s.logger.Warn("failed to publish finding event", zap.Error(err))
	}
}

// notifySubscriber invokes one callback, containing any panic.
func (s *Store) notifySubscriber(cb func(*Finding), finding *Finding) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("finding subscriber panicked",
				zap.String("area", finding.Area),
				zap.Any("panic", r))
		}
	}()
	cb(finding)
}

// Subscribe registers a callback invoked with every new finding written to
// the given area. Callback failures never affect writes.
func (s *Store) Subscribe(area string, cb func(*Finding)) error {
	if _, ok := s.areas[area]; !ok {
		return fmt.Errorf("subscribe to area %q: %w", area, ErrUnknownArea)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[area] = append(s.subscribers[area], cb)
	return nil
}

// Read returns the contents of one area, or a snapshot of every area when
// area is empty. List areas yield filtered findings; map areas yield their
// merged state (filters do not apply to map areas).
func (s *Store) Read(ctx context.Context, area string, fc *FilterCriteria) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if area == "" {
		snapshot := make(map[string]any, len(s.areaOrder))
		for _, name := range s.areaOrder {
			content, err := s.readAreaLocked(ctx, name, fc)
			if err != nil {
				return nil, err
			}
			snapshot[name] = content
		}
		return snapshot, nil
	}

	if _, ok := s.areas[area]; !ok {
		return nil, fmt.Errorf("read from area %q: %w", area, ErrUnknownArea)
	}

	return s.readAreaLocked(ctx, area, fc)
}

func (s *Store) readAreaLocked(ctx context.Context, area string, fc *FilterCriteria) (any, error) {
	switch s.areas[area] {
	case AreaKindMap:
		return s.readMapAreaLocked(ctx, area)
	default:
		return s.readListAreaLocked(ctx, area, fc)
	}
}

func (s *Store) readListAreaLocked(ctx context.Context, area string, fc *FilterCriteria) ([]*Finding, error) {
	ids, err := s.rdb.LRange(ctx, AreaListKey(s.investigationID, area), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read area %q: %w", area, err)
	}

	findings := make([]*Finding, 0, len(ids))
	for _, id := range ids {
		hash, err := s.rdb.HGetAll(ctx, FindingKey(s.investigationID, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read finding %s: %w", id, err)
		}
		if len(hash) == 0 {
			continue
		}

		finding, err := HashToFinding(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize finding %s: %w", id, err)
		}
		if fc.Matches(finding) {
			findings = append(findings, finding)
		}
	}

	return findings, nil
}

func (s *Store) readMapAreaLocked(ctx context.Context, area string) (map[string]any, error) {
	fields, err := s.rdb.HGetAll(ctx, AreaMapKey(s.investigationID, area)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read map area %q: %w", area, err)
	}

	state := make(map[string]any, len(fields))
	for key, valueJSON := range fields {
		var value any
		if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
			// Tolerate raw string values written by older tooling.
			value = valueJSON
		}
		state[key] = value
	}

	return state, nil
}

// Query scans every list area (map areas are excluded) and returns the
// findings matching the filter, in area-then-append order.
func (s *Store) Query(ctx context.Context, fc *FilterCriteria) ([]*Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*Finding
	for _, area := range s.areaOrder {
		if s.areas[area] != AreaKindList {
			continue
		}
		findings, err := s.readListAreaLocked(ctx, area, fc)
		if err != nil {
			return nil, err
		}
		results = append(results, findings...)
	}

	return results, nil
}

// Timeline returns every list-area finding merged and sorted ascending by
// timestamp, ties broken by insertion order.
func (s *Store) Timeline(ctx context.Context) ([]*Finding, error) {
	findings, err := s.Query(ctx, nil)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Timestamp.Equal(findings[j].Timestamp) {
			return findings[i].Seq < findings[j].Seq
		}
		return findings[i].Timestamp.Before(findings[j].Timestamp)
	})

	return findings, nil
}

// Statistics computes finding counts for the current store contents. The
// per-area counts always sum to the total because both are derived from
// the same locked scan.
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Statistics{
		ByArea:       make(map[string]int),
		ByProducer:   make(map[string]int),
		ByConfidence: make(map[string]int),
	}

	for _, area := range s.areaOrder {
		if s.areas[area] != AreaKindList {
			continue
		}
		findings, err := s.readListAreaLocked(ctx, area, nil)
		if err != nil {
			return nil, err
		}

		stats.ByArea[area] = len(findings)
		stats.TotalFindings += len(findings)
		for _, f := range findings {
			stats.ByProducer[f.Producer]++
			stats.ByConfidence[string(f.Confidence)]++
		}
	}

	return stats, nil
}

// Investigation returns the investigation metadata record.
func (s *Store) Investigation(ctx context.Context) (*Investigation, error) {
	hash, err := s.rdb.HGetAll(ctx, MetaKey(s.investigationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read investigation metadata: %w", err)
	}
	if len(hash) == 0 {
		return nil, fmt.Errorf("investigation %s: %w", s.investigationID, ErrNotFound)
	}
	return HashToInvestigation(hash)
}

// SetStatus transitions the investigation's lifecycle status.
func (s *Store) SetStatus(ctx context.Context, status InvestigationStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UTC().UnixMilli(),
	}
	if err := s.rdb.HSet(ctx, MetaKey(s.investigationID), fields).Err(); err != nil {
		return fmt.Errorf("failed to set investigation status: %w", err)
	}
	return nil
}

// SetQuestions stores the investigation's guiding questions.
func (s *Store) SetQuestions(ctx context.Context, questions []Question) error {
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := map[string]interface{}{
		"questions":              string(questionsJSON),
		"questions_generated_at": time.Now().UTC().UnixMilli(),
	}
	if err := s.rdb.HSet(ctx, MetaKey(s.investigationID), fields).Err(); err != nil {
		return fmt.Errorf("failed to store questions: %w", err)
	}
	return nil
}

// Questions returns the stored guiding questions, or nil if none were set.
func (s *Store) Questions(ctx context.Context) ([]Question, error) {
	questionsJSON, err := s.rdb.HGet(ctx, MetaKey(s.investigationID), "questions").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}

	var questions []Question
	if err := json.Unmarshal([]byte(questionsJSON), &questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	return questions, nil
}

// RecordAgentRun records a worker's most recent run outcome in the
// investigation metadata. Used by the exported document's processing view.
func (s *Store) RecordAgentRun(ctx context.Context, agentName, status string) error {
	run := map[string]string{
		"status":   status,
		"last_run": time.Now().UTC().Format(time.RFC3339),
	}
	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal agent run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	field := "agent:" + agentName
	if err := s.rdb.HSet(ctx, MetaKey(s.investigationID), field, string(runJSON)).Err(); err != nil {
		return fmt.Errorf("failed to record agent run: %w", err)
	}
	return nil
}

// Close marks the investigation completed and stamps the completion time.
// Idempotent - closing an already-closed store is a no-op.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":       string(StatusCompleted),
		"completed_at": now.UnixMilli(),
		"updated_at":   now.UnixMilli(),
	}
	if err := s.rdb.HSet(ctx, MetaKey(s.investigationID), fields).Err(); err != nil {
		return fmt.Errorf("failed to close investigation: %w", err)
	}

	s.closed = true
	return nil
}
