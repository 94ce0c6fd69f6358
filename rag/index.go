package rag

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/types"
)

// ScoredRecord pairs a retrieved record with its similarity score.
type ScoredRecord struct {
	Record types.MemoryRecord `json:"record"`
	Score  float64            `json:"score"`
}

// SearchQuery describes one similarity search.
type SearchQuery struct {
	// Embedding is the query vector. When nil the index falls back to
	// tag-overlap ranking and marks the result degraded.
	Embedding []float64

	// Tags feed the degraded fallback ranking.
	Tags []string

	// Owner scopes candidates to this agent's records union the shared
	// records. Empty means shared records only.
	Owner string

	// MissionID optionally narrows candidates to one mission.
	MissionID string

	// K caps the number of hits returned.
	K int

	// MinScore excludes low-confidence hits. Hits never score below it;
	// an empty result is returned when nothing clears the threshold.
	MinScore float64
}

// SearchResult is an ordered set of hits, non-increasing by score.
type SearchResult struct {
	Hits     []ScoredRecord `json:"hits"`
	Degraded bool           `json:"degraded"`
}

// Index runs similarity search over store reads. It holds no state of its
// own; every search sees the records visible in the store at call time.
type Index struct {
	store  memory.Store
	logger *zap.Logger
}

// NewIndex creates an index over the given store.
func NewIndex(store memory.Store, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		store:  store,
		logger: logger.With(zap.String("component", "vector_index")),
	}
}

// SimilaritySearch returns up to q.K records scored against the query,
// ordered by score descending. Cosine similarity scores embedded candidates;
// when the query embedding is absent the index degrades to Jaccard overlap
// of tags. Scores below q.MinScore are dropped rather than returned as
// noise.
func (ix *Index) SimilaritySearch(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	owners := []string{types.OwnerShared}
	if q.Owner != "" && q.Owner != types.OwnerShared {
		owners = append(owners, q.Owner)
	}
	candidates, err := ix.store.Query(ctx, memory.Filter{
		Owners:    owners,
		MissionID: q.MissionID,
	})
	if err != nil {
		return nil, err
	}

	degraded := q.Embedding == nil
	hits := make([]ScoredRecord, 0, len(candidates))
	for i := range candidates {
		rec := &candidates[i]
		var score float64
		if degraded {
			score = jaccard(q.Tags, rec.Tags)
		} else {
			if rec.Embedding == nil {
				continue
			}
			score = cosineSimilarity(q.Embedding, rec.Embedding)
		}
		if score < q.MinScore {
			continue
		}
		hits = append(hits, ScoredRecord{Record: candidates[i], Score: score})
	}

	// Non-increasing by score; older records first on equal score so
	// results stay stable across calls.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.CreatedAt.Before(hits[j].Record.CreatedAt)
	})
	if q.K > 0 && len(hits) > q.K {
		hits = hits[:q.K]
	}

	if degraded {
		ix.logger.Debug("similarity search degraded to tag overlap",
			zap.String("owner", q.Owner),
			zap.Int("hits", len(hits)))
	}
	return &SearchResult{Hits: hits, Degraded: degraded}, nil
}

// cosineSimilarity returns the cosine of the angle between a and b in
// [-1,1]. Mismatched dimensions and zero vectors score 0 rather than error,
// so one malformed record cannot fail a whole search.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jaccard returns |a∩b| / |a∪b| over lowercased tag sets, in [0,1].
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[strings.ToLower(t)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[strings.ToLower(t)] = struct{}{}
	}
	inter := 0
	for t := range setB {
		if _, ok := setA[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
