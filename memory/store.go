package memory

import (
	"context"

	"github.com/crewmind-ai/crewmind/types"
)

// Filter narrows a store query. Zero-valued fields match everything.
type Filter struct {
	// Owners restricts to records owned by any of the listed agents.
	// Retrieval scopes typically pass {agent, types.OwnerShared}.
	Owners []string

	// MissionID restricts to one logical task/session grouping.
	MissionID string

	// Kind restricts to one record kind.
	Kind types.RecordKind

	// AnyTags keeps only records sharing at least one tag with the set.
	AnyTags []string

	// Limit caps the result length. 0 means unlimited.
	Limit int
}

// matches reports whether rec passes every non-zero filter field. Tag
// intersection is evaluated in Go for both implementations, since the SQL
// store keeps tags as a serialized column.
func (f Filter) matches(rec *types.MemoryRecord) bool {
	if len(f.Owners) > 0 {
		ok := false
		for _, o := range f.Owners {
			if rec.Owner == o {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.MissionID != "" && rec.MissionID != f.MissionID {
		return false
	}
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if len(f.AnyTags) > 0 && types.TagOverlap(f.AnyTags, rec.Tags) == 0 {
		return false
	}
	return true
}

// Store is the append-only persistence contract for memory records.
//
// Insert assigns the record id and creation timestamp and never silently
// drops a write: it returns a STORE_UNAVAILABLE error when the backing
// service cannot be reached, and the caller must retry or surface it.
// Query returns records ordered by created_at ascending. Within one mission
// the read order reflects the write order; across concurrently writing agents
// no global ordering beyond each record's own timestamp is guaranteed.
type Store interface {
	Insert(ctx context.Context, rec *types.MemoryRecord) (string, error)
	Query(ctx context.Context, f Filter) ([]types.MemoryRecord, error)
	Count(ctx context.Context, f Filter) (int64, error)
}
