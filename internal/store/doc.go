// Package store provides SQLite-backed durable storage for a node's
// validation pipeline.
//
// Tables:
//   - validation_limbo: ops awaiting or mid system validation
//   - integration_limbo: validated ops awaiting integration
//   - integrated_ops: finalized ops (read-only to system validation)
//   - elements, entries: headers and entries, scoped to 'vault' or 'cache'
//   - agent_activity, links: metadata indexes, scoped the same way
//   - rejected_ops: audit sink for terminal validation failures
//
// # Critical Patterns
//
// Single Commit Boundary:
//   - Workflow mutations are collected in a Batch and applied by Apply in
//     one transaction; a failed Apply leaves every table untouched
//
// Deterministic Query Results:
//   - List queries ORDER BY their key COLLATE BINARY so replays see the
//     same order
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Ops are stored as encoding/json TEXT; their keys are content hashes
// computed by package dht.
package store
