package audit

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/internal/metrics"
	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/types"
)

// Conflict is one flagged record pair.
type Conflict struct {
	RecordA types.MemoryRecord `json:"record_a"`
	RecordB types.MemoryRecord `json:"record_b"`
	Reason  string             `json:"reason"`
}

// Report summarizes one audit pass. ConsistencyScore is a percentage in
// [0,100]; an empty scope scores 100.
type Report struct {
	MissionID          string     `json:"mission_id,omitempty"`
	TotalRecords       int        `json:"total_records"`
	ConflictingRecords int        `json:"conflicting_records"`
	Conflicts          []Conflict `json:"conflicts"`
	ConsistencyScore   float64    `json:"consistency_score"`
	FlagRecordIDs      []string   `json:"flag_record_ids,omitempty"`
}

// AuditorConfig tunes topic grouping.
type AuditorConfig struct {
	// ClusterThreshold is the embedding similarity above which two records
	// share a topic. Defaults to 0.8.
	ClusterThreshold float64 `yaml:"cluster_threshold" json:"cluster_threshold"`
}

// Auditor scans shared records for topic conflicts.
type Auditor struct {
	store     memory.Store
	detector  ConflictDetector
	threshold float64
	collector *metrics.Collector
	logger    *zap.Logger
}

// AuditorOptions carries the optional auditor collaborators.
type AuditorOptions struct {
	// Detector overrides the conflict heuristic. Defaults to
	// StatusMarkerDetector.
	Detector ConflictDetector

	// Collector receives audit metrics. Nil disables them.
	Collector *metrics.Collector

	Logger *zap.Logger
}

// NewAuditor creates an auditor over the given store.
func NewAuditor(store memory.Store, config AuditorConfig, opts AuditorOptions) *Auditor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	detector := opts.Detector
	if detector == nil {
		detector = &StatusMarkerDetector{}
	}
	threshold := config.ClusterThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	return &Auditor{
		store:     store,
		detector:  detector,
		threshold: threshold,
		collector: opts.Collector,
		logger:    logger.With(zap.String("component", "consistency_auditor")),
	}
}

// Audit scans the shared records, optionally narrowed to one mission, and
// persists every detected conflict as an audit_flag record so conflicts
// stay durable and queryable.
func (a *Auditor) Audit(ctx context.Context, missionID string) (*Report, error) {
	records, err := a.store.Query(ctx, memory.Filter{
		Owners:    []string{types.OwnerShared},
		MissionID: missionID,
	})
	if err != nil {
		return nil, err
	}

	// Earlier audit flags are themselves shared records; auditing them
	// would re-flag every known conflict.
	scoped := records[:0:0]
	for i := range records {
		if records[i].Kind == types.KindAuditFlag {
			continue
		}
		scoped = append(scoped, records[i])
	}

	report := &Report{
		MissionID:    missionID,
		TotalRecords: len(scoped),
		Conflicts:    []Conflict{},
	}
	if len(scoped) == 0 {
		report.ConsistencyScore = 100
		return report, nil
	}

	groups := a.groupByTopic(scoped)
	conflicting := make(map[string]struct{})
	for _, group := range groups {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				recA, recB := &scoped[group[i]], &scoped[group[j]]
				reason, found := a.detector.Detect(recA, recB)
				if !found {
					continue
				}
				report.Conflicts = append(report.Conflicts, Conflict{
					RecordA: *recA, RecordB: *recB, Reason: reason,
				})
				conflicting[recA.ID] = struct{}{}
				conflicting[recB.ID] = struct{}{}
			}
		}
	}
	report.ConflictingRecords = len(conflicting)
	report.ConsistencyScore = 100 * float64(len(scoped)-len(conflicting)) / float64(len(scoped))

	for _, c := range report.Conflicts {
		flagID, err := a.persistFlag(ctx, missionID, &c)
		if err != nil {
			return nil, err
		}
		report.FlagRecordIDs = append(report.FlagRecordIDs, flagID)
	}

	a.collector.AddAuditConflicts(len(report.Conflicts))
	a.logger.Info("audit pass completed",
		zap.String("mission_id", missionID),
		zap.Int("records", report.TotalRecords),
		zap.Int("conflicts", len(report.Conflicts)),
		zap.Float64("consistency_score", report.ConsistencyScore))
	return report, nil
}

// groupByTopic clusters record indices with union-find. Two records share a
// topic when their tags intersect or their embeddings exceed the clustering
// threshold. Machine tags (supersedes:, hash:, ...) carry no topic signal
// and are excluded.
func (a *Auditor) groupByTopic(records []types.MemoryRecord) [][]int {
	parent := make([]int, len(records))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(x, y int) { parent[find(x)] = find(y) }

	topicTags := make([][]string, len(records))
	for i := range records {
		topicTags[i] = stripMachineTags(records[i].Tags)
	}

	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			if types.TagOverlap(topicTags[i], topicTags[j]) > 0 {
				union(i, j)
				continue
			}
			if cosine(records[i].Embedding, records[j].Embedding) >= a.threshold {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int][]int)
	for i := range records {
		root := find(i)
		byRoot[root] = append(byRoot[root], i)
	}
	groups := make([][]int, 0, len(byRoot))
	for _, members := range byRoot {
		if len(members) > 1 {
			groups = append(groups, members)
		}
	}
	return groups
}

func (a *Auditor) persistFlag(ctx context.Context, missionID string, c *Conflict) (string, error) {
	rec := &types.MemoryRecord{
		Owner:      types.OwnerShared,
		MissionID:  missionID,
		Kind:       types.KindAuditFlag,
		Content:    fmt.Sprintf("conflict between %s and %s: %s", c.RecordA.ID, c.RecordB.ID, c.Reason),
		Importance: types.ImportanceHigh,
		Tags:       []string{"conflict", "ref:" + c.RecordA.ID, "ref:" + c.RecordB.ID},
	}
	id, err := a.store.Insert(ctx, rec)
	if err != nil {
		a.logger.Error("audit flag write failed", zap.Error(err))
		return "", err
	}
	return id, nil
}

func stripMachineTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if strings.Contains(t, ":") {
			continue
		}
		out = append(out, t)
	}
	return out
}

func cosine(a, b []float64) float64 {
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
