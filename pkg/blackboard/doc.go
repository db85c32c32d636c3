// Package blackboard provides the shared knowledge store for Inquest
// investigations. The blackboard is the central state system where all
// Inquest components (coordinator, analysis workers, CLI, monitor) exchange
// typed findings partitioned into named knowledge areas, backed by Redis.
//
// All Redis keys and channels are namespaced by investigation ID so that
// many investigations can safely coexist on a single Redis server.
package blackboard
