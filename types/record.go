package types

import (
	"strings"
	"time"
)

// OwnerShared is the sentinel owner for cross-agent knowledge. Records owned
// by OwnerShared are visible to every agent's retrieval scope.
const OwnerShared = "shared"

// SupersedesTagPrefix marks a record as superseding an earlier one. Records
// are immutable after insert; a correction is a fresh record carrying
// "supersedes:<old id>" in its tags, never an in-place edit.
const SupersedesTagPrefix = "supersedes:"

// ContentHashTagPrefix carries the idempotency hash of the request that
// produced an exchange record, so a cold cache can be rebuilt from the store.
const ContentHashTagPrefix = "hash:"

// RecordKind classifies a memory record by its producer.
type RecordKind string

const (
	// KindExchange captures one request/response pair, written by the RAG
	// pipeline with the responding agent as owner.
	KindExchange RecordKind = "exchange"

	// KindSystemNote is operator-injected knowledge.
	KindSystemNote RecordKind = "system_note"

	// KindSynthesis is the aggregated output of a multi-agent session,
	// written by the crew orchestrator.
	KindSynthesis RecordKind = "synthesis"

	// KindAuditFlag is a persisted consistency conflict, written by the
	// auditor.
	KindAuditFlag RecordKind = "audit_flag"
)

// Valid reports whether k is a known record kind.
func (k RecordKind) Valid() bool {
	switch k {
	case KindExchange, KindSystemNote, KindSynthesis, KindAuditFlag:
		return true
	}
	return false
}

// Importance grades how much weight a record carries during retrieval and
// consolidation.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// MemoryRecord is a single append-only knowledge entry shared across agents.
// All fields are fixed at insert time; the store assigns ID and CreatedAt.
type MemoryRecord struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	MissionID  string     `json:"mission_id"`
	Kind       RecordKind `json:"kind"`
	Content    string     `json:"content"`
	Embedding  []float64  `json:"embedding,omitempty"`
	Importance Importance `json:"importance"`
	Tags       []string   `json:"tags,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HasTag reports whether the record carries the exact tag.
func (r *MemoryRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TagWithPrefix returns the suffix of the first tag carrying the prefix, and
// whether one was found.
func (r *MemoryRecord) TagWithPrefix(prefix string) (string, bool) {
	for _, t := range r.Tags {
		if strings.HasPrefix(t, prefix) {
			return strings.TrimPrefix(t, prefix), true
		}
	}
	return "", false
}

// Supersedes returns the id of the record this one supersedes, if any.
func (r *MemoryRecord) Supersedes() (string, bool) {
	return r.TagWithPrefix(SupersedesTagPrefix)
}

// ContentHash returns the idempotency hash tag of an exchange record, if any.
func (r *MemoryRecord) ContentHash() (string, bool) {
	return r.TagWithPrefix(ContentHashTagPrefix)
}

// TagOverlap counts tags present in both sets (case-insensitive).
func TagOverlap(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[strings.ToLower(t)] = struct{}{}
	}
	n := 0
	for _, t := range b {
		if _, ok := set[strings.ToLower(t)]; ok {
			n++
		}
	}
	return n
}
