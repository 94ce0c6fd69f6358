// Package audit scans the shared memory for cross-agent inconsistencies.
//
// The auditor groups shared records by topic, using tag intersection or
// embedding proximity, and flags pairs whose content carries opposite status
// markers for the same subject. Detection is a heuristic for human review,
// not automatic resolution: each conflict is persisted as a durable
// audit_flag record, and the bounded consistency score summarizes how much
// of the scanned scope is conflict-free.
package audit
