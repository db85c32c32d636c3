package blackboard

import (
	"fmt"
	"time"
)

// Finding represents one immutable unit of evidence on the blackboard.
// Findings are appended to a knowledge area by an analysis worker and are
// never edited in place - every piece of evidence carries full provenance.
type Finding struct {
	ID         string         `json:"id"`                 // Unique identifier (UUID for list areas, synthetic for map merges)
	Seq        int64          `json:"seq"`                // Per-investigation insertion order, assigned at write time
	Timestamp  time.Time      `json:"timestamp"`          // When the finding was written
	Producer   string         `json:"producer"`           // Name of the worker that wrote it
	Area       string         `json:"area"`               // Knowledge area the finding belongs to
	Data       map[string]any `json:"data"`               // Opaque structured payload
	Confidence Confidence     `json:"confidence"`         // Producer's confidence in the finding
	Tags       []string       `json:"tags"`               // Free-form labels for filtering
	Metadata   map[string]any `json:"metadata,omitempty"` // Supplemental producer metadata
}

// Confidence expresses how certain a producer is about a finding.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Validate checks if the Confidence is a valid enum value.
func (c Confidence) Validate() error {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return nil
	default:
		return fmt.Errorf("unknown confidence level: %q", c)
	}
}

// AreaKind distinguishes the two shapes a knowledge area can take.
type AreaKind string

const (
	// AreaKindList is an ordered append-only sequence of findings.
	AreaKindList AreaKind = "list"

	// AreaKindMap is key-merged structured state; writes merge keys
	// instead of appending findings.
	AreaKindMap AreaKind = "map"
)

// Validate checks if the AreaKind is a valid enum value.
func (k AreaKind) Validate() error {
	switch k {
	case AreaKindList, AreaKindMap:
		return nil
	default:
		return fmt.Errorf("unknown area kind: %q", k)
	}
}

// AreaSpec declares one knowledge area of a deployment. The set of valid
// areas is fixed when a store is created; writes to undeclared areas fail.
type AreaSpec struct {
	Name string   `json:"name" yaml:"name"`
	Kind AreaKind `json:"kind" yaml:"kind"`
}

// InvestigationStatus is the lifecycle state of an investigation.
type InvestigationStatus string

const (
	StatusActive    InvestigationStatus = "active"
	StatusCompleted InvestigationStatus = "completed"
	StatusFailed    InvestigationStatus = "failed"
)

// Validate checks if the InvestigationStatus is a valid enum value.
func (s InvestigationStatus) Validate() error {
	switch s {
	case StatusActive, StatusCompleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown investigation status: %q", s)
	}
}

// Indicator is a single typed observable (IP, domain, hash, filepath,
// hostname) supplied by the caller or extracted from question text.
type Indicator struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// CaseContext is the caller-supplied description of the case under
// investigation. It is treated as opaque beyond the fields named here.
type CaseContext struct {
	CaseID            string         `json:"case_id"`
	Title             string         `json:"title,omitempty"`
	Priority          string         `json:"priority,omitempty"` // low, medium, high, critical
	InitialIndicators []Indicator    `json:"initial_indicators,omitempty"`
	DataSources       []string       `json:"data_sources,omitempty"`
	InvestigationType string         `json:"investigation_type,omitempty"`
	Timeframe         map[string]any `json:"timeframe,omitempty"`
}

// Investigation is the metadata record for one investigation's store.
type Investigation struct {
	ID          string              `json:"id"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt time.Time           `json:"completed_at,omitempty"`
	Status      InvestigationStatus `json:"status"`
	CaseContext CaseContext         `json:"case_context"`
}

// QuestionPriority ranks how urgently a question should be answered.
type QuestionPriority string

const (
	PriorityCritical QuestionPriority = "critical"
	PriorityHigh     QuestionPriority = "high"
	PriorityMedium   QuestionPriority = "medium"
	PriorityLow      QuestionPriority = "low"
)

// Validate checks if the QuestionPriority is a valid enum value.
func (p QuestionPriority) Validate() error {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return nil
	default:
		return fmt.Errorf("unknown question priority: %q", p)
	}
}

// Question is one guiding question for an investigation. Compound
// questions referencing several indicators are expanded into children
// with IDs of the form "{parent}.{n}", one child per indicator.
type Question struct {
	ID                    string           `json:"id"`
	ParentID              string           `json:"parent_id,omitempty"`
	Category              string           `json:"category"`
	Priority              QuestionPriority `json:"priority"`
	Question              string           `json:"question"`
	Rationale             string           `json:"rationale,omitempty"`
	InvestigationAreas    []string         `json:"investigation_areas,omitempty"`
	ExpectedEvidenceTypes []string         `json:"expected_evidence_types,omitempty"`
	Indicator             *Indicator       `json:"indicator,omitempty"`   // Set on expanded children only
	Enhancement           *Enhancement     `json:"enhancement,omitempty"` // Set by the capability mapper
}

// Enhancement annotates a question with the capabilities available to
// answer it. It is attached strictly after question generation and
// hierarchy expansion so question coverage is never biased by tooling.
type Enhancement struct {
	AvailableCapabilities []string `json:"available_capabilities"`
	SuggestedApproach     []string `json:"suggested_approach,omitempty"`
	CapabilityWishlist    []string `json:"capability_wishlist,omitempty"`
	DataSourcesNeeded     []string `json:"data_sources_needed,omitempty"`
	AlternativeMethods    []string `json:"alternative_methods,omitempty"`
}

// Statistics summarizes the contents of one investigation's store.
// The per-area counts always sum to TotalFindings.
type Statistics struct {
	TotalFindings int            `json:"total_findings"`
	ByArea        map[string]int `json:"findings_by_area"`
	ByProducer    map[string]int `json:"findings_by_producer"`
	ByConfidence  map[string]int `json:"findings_by_confidence"`
}

// Validate checks if the Finding has valid field values.
func (f *Finding) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("finding ID cannot be empty")
	}

	if f.Area == "" {
		return fmt.Errorf("finding area cannot be empty")
	}

	if f.Producer == "" {
		return fmt.Errorf("finding producer cannot be empty")
	}

	if err := f.Confidence.Validate(); err != nil {
		return fmt.Errorf("invalid confidence: %w", err)
	}

	return nil
}
