// Package memory provides the append-only knowledge store shared by all
// agents.
//
// The store exposes insert and filtered query only. Records are immutable
// after insert; superseding a record is modeled as a fresh insert carrying a
// supersedes tag, and nothing is ever deleted. Two implementations ship: a
// gorm-backed SQL store for persistent deployments and an in-memory store for
// tests and embedded use.
package memory
