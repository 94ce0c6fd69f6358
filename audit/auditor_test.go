package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/types"
)

func newAuditFixture(t *testing.T) (*memory.InMemoryStore, *Auditor) {
	t.Helper()
	store := memory.NewInMemoryStore(memory.InMemoryStoreConfig{}, zap.NewNop())
	return store, NewAuditor(store, AuditorConfig{}, AuditorOptions{Logger: zap.NewNop()})
}

func insertShared(t *testing.T, store memory.Store, content string, tags []string, embedding []float64) string {
	t.Helper()
	id, err := store.Insert(context.Background(), &types.MemoryRecord{
		Owner:     types.OwnerShared,
		MissionID: "m1",
		Kind:      types.KindSystemNote,
		Content:   content,
		Tags:      tags,
		Embedding: embedding,
	})
	require.NoError(t, err)
	return id
}

func TestAudit_EmptyScopeScoresHundred(t *testing.T) {
	t.Parallel()
	_, auditor := newAuditFixture(t)

	report, err := auditor.Audit(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, float64(100), report.ConsistencyScore)
	assert.Zero(t, report.TotalRecords)
	assert.Empty(t, report.Conflicts)
}

func TestAudit_FlagsOppositeStatusInTagGroup(t *testing.T) {
	t.Parallel()
	store, auditor := newAuditFixture(t)
	ctx := context.Background()

	idA := insertShared(t, store, "migration to the new cluster completed", []string{"migration"}, nil)
	idB := insertShared(t, store, "migration rolled back after data loss", []string{"migration"}, nil)
	insertShared(t, store, "billing report published", []string{"billing"}, nil)

	report, err := auditor.Audit(ctx, "m1")
	require.NoError(t, err)

	require.Len(t, report.Conflicts, 1)
	assert.Contains(t, report.Conflicts[0].Reason, "opposite status markers")
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, 2, report.ConflictingRecords)
	assert.InDelta(t, 100.0/3.0, report.ConsistencyScore, 1e-9)

	// The conflict was persisted as a durable audit_flag record.
	flags, err := store.Query(ctx, memory.Filter{Kind: types.KindAuditFlag})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Contains(t, flags[0].Content, idA)
	assert.Contains(t, flags[0].Content, idB)
	assert.True(t, flags[0].HasTag("conflict"))
}

func TestAudit_GroupsByEmbeddingProximity(t *testing.T) {
	t.Parallel()
	store, auditor := newAuditFixture(t)

	// No tag overlap; near-identical embeddings cluster the pair.
	insertShared(t, store, "rollout succeeded in all regions", []string{"alpha"}, []float64{1, 0, 0.01})
	insertShared(t, store, "rollout failed in eu-west", []string{"beta"}, []float64{1, 0, 0})

	report, err := auditor.Audit(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	assert.Zero(t, report.ConsistencyScore)
}

func TestAudit_NoConflictWithoutOppositeMarkers(t *testing.T) {
	t.Parallel()
	store, auditor := newAuditFixture(t)

	insertShared(t, store, "migration completed", []string{"migration"}, nil)
	insertShared(t, store, "migration completed and verified", []string{"migration"}, nil)

	report, err := auditor.Audit(context.Background(), "m1")
	require.NoError(t, err)
	assert.Empty(t, report.Conflicts)
	assert.Equal(t, float64(100), report.ConsistencyScore)
}

func TestAudit_IgnoresPriorAuditFlags(t *testing.T) {
	t.Parallel()
	store, auditor := newAuditFixture(t)
	ctx := context.Background()

	insertShared(t, store, "deploy completed", []string{"deploy"}, nil)
	insertShared(t, store, "deploy failed", []string{"deploy"}, nil)

	first, err := auditor.Audit(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, first.Conflicts, 1)

	// Re-auditing does not feed earlier flags back into the scan.
	second, err := auditor.Audit(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, second.Conflicts, 1)
	assert.Equal(t, first.TotalRecords, second.TotalRecords)
}

func TestAudit_ScoreStaysBounded(t *testing.T) {
	t.Parallel()
	store, auditor := newAuditFixture(t)

	insertShared(t, store, "job a succeeded", []string{"job"}, nil)
	insertShared(t, store, "job a failed", []string{"job"}, nil)
	insertShared(t, store, "job b succeeded", []string{"job"}, nil)
	insertShared(t, store, "job b failed", []string{"job"}, nil)

	report, err := auditor.Audit(context.Background(), "m1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.ConsistencyScore, float64(0))
	assert.LessOrEqual(t, report.ConsistencyScore, float64(100))
	assert.Equal(t, 4, report.ConflictingRecords)
}

func TestStatusMarkerDetector(t *testing.T) {
	t.Parallel()
	d := &StatusMarkerDetector{}

	a := &types.MemoryRecord{Content: "ticket resolved by restart"}
	b := &types.MemoryRecord{Content: "ticket failed again overnight"}
	reason, conflict := d.Detect(a, b)
	assert.True(t, conflict)
	assert.Contains(t, reason, "resolved")
	assert.Contains(t, reason, "failed")

	// Symmetric.
	reason2, conflict2 := d.Detect(b, a)
	assert.True(t, conflict2)
	assert.Equal(t, reason, reason2)

	// A record carrying both markers is ambiguous, not conflicting.
	c := &types.MemoryRecord{Content: "deploy succeeded then failed"}
	_, conflict = d.Detect(a, c)
	assert.False(t, conflict)

	_, conflict = d.Detect(&types.MemoryRecord{Content: "neutral note"}, b)
	assert.False(t, conflict)
}
