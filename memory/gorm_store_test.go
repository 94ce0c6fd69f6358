package memory

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/crewmind-ai/crewmind/types"
)

func TestGormStore_ImplementsStore(t *testing.T) {
	var _ Store = (*GormStore)(nil)
}

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store, err := NewGormStore(db, GormStoreConfig{Now: func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestGormStore_InsertAndQueryRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	rec := &types.MemoryRecord{
		Owner:      "data",
		MissionID:  "m1",
		Kind:       types.KindExchange,
		Content:    "analyze retry backoff strategy",
		Embedding:  []float64{0.1, 0.2, 0.3},
		Importance: types.ImportanceHigh,
		Tags:       []string{"infra", "retry"},
	}
	id, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Query(ctx, Filter{MissionID: "m1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, rec.Content, got[0].Content)
	assert.Equal(t, rec.Embedding, got[0].Embedding)
	assert.Equal(t, rec.Tags, got[0].Tags)
	assert.Equal(t, types.ImportanceHigh, got[0].Importance)
}

func TestGormStore_FiltersAndOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	seed := []types.MemoryRecord{
		{Owner: "data", MissionID: "m1", Kind: types.KindExchange, Content: "a", Tags: []string{"infra"}},
		{Owner: types.OwnerShared, MissionID: "m1", Kind: types.KindAuditFlag, Content: "b", Tags: []string{"conflict"}},
		{Owner: "ops", MissionID: "m2", Kind: types.KindExchange, Content: "c", Tags: []string{"infra", "deploy"}},
	}
	for i := range seed {
		_, err := store.Insert(ctx, &seed[i])
		require.NoError(t, err)
	}

	all, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
	}

	scoped, err := store.Query(ctx, Filter{Owners: []string{"data", types.OwnerShared}})
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	flagged, err := store.Query(ctx, Filter{Kind: types.KindAuditFlag})
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "b", flagged[0].Content)

	tagged, err := store.Query(ctx, Filter{AnyTags: []string{"infra"}})
	require.NoError(t, err)
	assert.Len(t, tagged, 2)

	n, err := store.Count(ctx, Filter{MissionID: "m1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = store.Count(ctx, Filter{AnyTags: []string{"deploy"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestGormStore_LimitCapsResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := setupGormStore(t)

	for i := 0; i < 5; i++ {
		_, err := store.Insert(ctx, &types.MemoryRecord{Owner: "data", Kind: types.KindExchange, Content: "r"})
		require.NoError(t, err)
	}

	got, err := store.Query(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
