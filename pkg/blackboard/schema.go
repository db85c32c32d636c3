package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by investigation ID so
// many investigations can coexist on one Redis server.
//
// Key pattern: inquest:{investigation_id}:{entity}[:{name}]
// Channel pattern: inquest:{investigation_id}:finding_events

// FindingKey returns the Redis key for a single finding hash.
// Pattern: inquest:{investigation_id}:finding:{finding_id}
func FindingKey(investigationID, findingID string) string {
	return fmt.Sprintf("inquest:%s:finding:%s", investigationID, findingID)
}

// AreaListKey returns the Redis key for a list area's ordered finding IDs.
// Pattern: inquest:{investigation_id}:area:{area_name}
func AreaListKey(investigationID, area string) string {
	return fmt.Sprintf("inquest:%s:area:%s", investigationID, area)
}

// AreaMapKey returns the Redis key for a map area's merged state hash.
// Pattern: inquest:{investigation_id}:map:{area_name}
func AreaMapKey(investigationID, area string) string {
	return fmt.Sprintf("inquest:%s:map:%s", investigationID, area)
}

// MetaKey returns the Redis key for the investigation metadata hash.
// Pattern: inquest:{investigation_id}:meta
func MetaKey(investigationID string) string {
	return fmt.Sprintf("inquest:%s:meta", investigationID)
}

// SeqKey returns the Redis key for the per-investigation write sequence.
// Pattern: inquest:{investigation_id}:seq
func SeqKey(investigationID string) string {
	return fmt.Sprintf("inquest:%s:seq", investigationID)
}

// FindingEventsChannel returns the Pub/Sub channel for finding events.
// Every successful write publishes the full finding JSON here.
// Pattern: inquest:{investigation_id}:finding_events
func FindingEventsChannel(investigationID string) string {
	return fmt.Sprintf("inquest:%s:finding_events", investigationID)
}
