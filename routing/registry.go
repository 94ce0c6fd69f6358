package routing

import (
	"fmt"
	"sort"

	"github.com/crewmind-ai/crewmind/types"
)

// Registry is an immutable snapshot of the agent profiles available for
// routing. It is built once at construction time and updated out-of-band by
// swapping in a new Registry, so request-time reads need no locking.
type Registry struct {
	byID  map[string]types.AgentProfile
	order []string
}

// NewRegistry validates and indexes the given profiles. Profile ids must be
// unique and every profile must declare at least one specialization tag.
func NewRegistry(profiles []types.AgentProfile) (*Registry, error) {
	r := &Registry{byID: make(map[string]types.AgentProfile, len(profiles))}
	for _, p := range profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("agent profile with empty id")
		}
		if p.ID == types.OwnerShared {
			return nil, fmt.Errorf("agent id %q is reserved", types.OwnerShared)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", p.ID)
		}
		if len(p.SpecializationTags) == 0 {
			return nil, fmt.Errorf("agent %q has no specialization tags", p.ID)
		}
		r.byID[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

// Get returns the profile for id.
func (r *Registry) Get(id string) (types.AgentProfile, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// IDs returns all agent ids in lexicographic order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// All returns all profiles in lexicographic id order.
func (r *Registry) All() []types.AgentProfile {
	out := make([]types.AgentProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len reports the number of registered agents.
func (r *Registry) Len() int { return len(r.byID) }
