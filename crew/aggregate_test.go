package crew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_ConsensusRequiresTwoAgents(t *testing.T) {
	t.Parallel()
	consensus, _, _ := aggregateOutputs(map[string]string{
		"a": "The indexer is the bottleneck. Disk usage is stable.",
		"b": "The indexer is the bottleneck! Memory usage is stable.",
		"c": "Nothing unusual in the logs.",
	}, nil)

	require.Len(t, consensus, 1)
	assert.Equal(t, "The indexer is the bottleneck", consensus[0])
}

func TestAggregate_ConsensusIgnoresCaseAndPunctuation(t *testing.T) {
	t.Parallel()
	consensus, _, _ := aggregateOutputs(map[string]string{
		"a": "rotate the signing keys.",
		"b": "Rotate the signing keys!",
	}, nil)

	require.Len(t, consensus, 1)
}

func TestAggregate_RecommendationsRankedBySupport(t *testing.T) {
	t.Parallel()
	_, _, recs := aggregateOutputs(map[string]string{
		"a": "We should add request tracing. We should cap retry attempts.",
		"b": "We should add request tracing.",
		"c": "Everything looks stable.",
	}, map[string]int{"a": 2, "b": 1, "c": 3})

	require.Len(t, recs, 2)
	assert.Equal(t, "We should add request tracing", recs[0])
	assert.Equal(t, "We should cap retry attempts", recs[1])
}

func TestAggregate_RecommendationTieBrokenByPriorityRank(t *testing.T) {
	t.Parallel()
	// Both recommendations have a single supporter; the higher-priority
	// agent's comes first.
	_, _, recs := aggregateOutputs(map[string]string{
		"junior": "We should batch the writes.",
		"lead":   "We should shard the index.",
	}, map[string]int{"junior": 5, "lead": 1})

	require.Len(t, recs, 2)
	assert.Equal(t, "We should shard the index", recs[0])
}

func TestAggregate_DivergentOpposingStances(t *testing.T) {
	t.Parallel()
	_, divergent, _ := aggregateOutputs(map[string]string{
		"a": "We should increase the connection pool size.",
		"b": "We should decrease the connection pool size.",
	}, nil)

	require.Len(t, divergent, 1)
	assert.Contains(t, divergent[0], "increase the connection pool")
	assert.Contains(t, divergent[0], "decrease the connection pool")
}

func TestAggregate_NoDivergenceOnDifferentSubjects(t *testing.T) {
	t.Parallel()
	_, divergent, _ := aggregateOutputs(map[string]string{
		"a": "We should increase the connection pool size.",
		"b": "We should decrease marketing spend on banner campaigns.",
	}, nil)

	assert.Empty(t, divergent)
}

func TestAggregate_ShortFragmentsDropped(t *testing.T) {
	t.Parallel()
	consensus, divergent, recs := aggregateOutputs(map[string]string{
		"a": "Ok. Yes.",
		"b": "Ok. Fine then.",
	}, nil)

	assert.Empty(t, consensus)
	assert.Empty(t, divergent)
	assert.Empty(t, recs)
}

func TestAggregate_BulletListsAreSplit(t *testing.T) {
	t.Parallel()
	consensus, _, _ := aggregateOutputs(map[string]string{
		"a": "- tighten the rate limits\n- document the rollout steps",
		"b": "findings:\n* tighten the rate limits",
	}, nil)

	require.Len(t, consensus, 1)
	assert.Equal(t, "tighten the rate limits", consensus[0])
}

func TestNormalizeGist(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "rotate the keys", normalizeGist("Rotate, the KEYS!"))
	assert.Equal(t, "", normalizeGist("too short"))
	assert.Equal(t, "", normalizeGist("   "))
}
