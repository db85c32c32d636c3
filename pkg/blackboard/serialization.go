package blackboard

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Complex fields like
// the finding payload and tag list are JSON-encoded into single hash fields.
// This keeps individual fields queryable while leaving payloads flexible.

// FindingToHash converts a Finding to Redis hash format.
// Structured fields (data, tags, metadata) are JSON-encoded.
func FindingToHash(f *Finding) (map[string]interface{}, error) {
	dataJSON, err := json.Marshal(f.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal finding data: %w", err)
	}

	tagsJSON, err := json.Marshal(f.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal finding tags: %w", err)
	}

	metadataJSON, err := json.Marshal(f.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal finding metadata: %w", err)
	}

	hash := map[string]interface{}{
		"id":           f.ID,
		"seq":          f.Seq,
		"timestamp_ms": f.Timestamp.UnixMilli(),
		"producer":     f.Producer,
		"area":         f.Area,
		"data":         string(dataJSON),
		"confidence":   string(f.Confidence),
		"tags":         string(tagsJSON),
		"metadata":     string(metadataJSON),
	}

	return hash, nil
}

// HashToFinding converts a Redis hash back to a Finding.
// JSON fields are decoded back to Go types.
func HashToFinding(hash map[string]string) (*Finding, error) {
	seq, err := strconv.ParseInt(hash["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seq field: %w", err)
	}

	timestampMs, err := strconv.ParseInt(hash["timestamp_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp_ms field: %w", err)
	}

	var data map[string]any
	if dataJSON := hash["data"]; dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal finding data: %w", err)
		}
	}

	var tags []string
	if tagsJSON := hash["tags"]; tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal finding tags: %w", err)
		}
	}
	// Ensure an empty slice instead of nil for consistency
	if tags == nil {
		tags = []string{}
	}

	var metadata map[string]any
	if metadataJSON := hash["metadata"]; metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal finding metadata: %w", err)
		}
	}

	finding := &Finding{
		ID:         hash["id"],
		Seq:        seq,
		Timestamp:  time.UnixMilli(timestampMs).UTC(),
		Producer:   hash["producer"],
		Area:       hash["area"],
		Data:       data,
		Confidence: Confidence(hash["confidence"]),
		Tags:       tags,
		Metadata:   metadata,
	}

	return finding, nil
}

// InvestigationToHash converts an Investigation to Redis hash format.
// The case context is JSON-encoded into a single field.
func InvestigationToHash(inv *Investigation) (map[string]interface{}, error) {
	contextJSON, err := json.Marshal(inv.CaseContext)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal case context: %w", err)
	}

	hash := map[string]interface{}{
		"id":           inv.ID,
		"created_at":   inv.CreatedAt.UnixMilli(),
		"updated_at":   inv.UpdatedAt.UnixMilli(),
		"status":       string(inv.Status),
		"case_context": string(contextJSON),
	}

	if !inv.CompletedAt.IsZero() {
		hash["completed_at"] = inv.CompletedAt.UnixMilli()
	}

	return hash, nil
}

// HashToInvestigation converts a Redis hash back to an Investigation.
func HashToInvestigation(hash map[string]string) (*Investigation, error) {
	createdAt, err := strconv.ParseInt(hash["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at field: %w", err)
	}

	updatedAt, err := strconv.ParseInt(hash["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at field: %w", err)
	}

	var caseContext CaseContext
	if contextJSON := hash["case_context"]; contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &caseContext); err != nil {
			return nil, fmt.Errorf("failed to unmarshal case context: %w", err)
		}
	}

	inv := &Investigation{
		ID:          hash["id"],
		CreatedAt:   time.UnixMilli(createdAt).UTC(),
		UpdatedAt:   time.UnixMilli(updatedAt).UTC(),
		Status:      InvestigationStatus(hash["status"]),
		CaseContext: caseContext,
	}

	if completedAt, err := strconv.ParseInt(hash["completed_at"], 10, 64); err == nil {
		inv.CompletedAt = time.UnixMilli(completedAt).UTC()
	}

	return inv, nil
}
