package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/types"
)

// InMemoryStore is a Store backed by a process-local slice. It is used for
// local development, tests, and small embedded deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []types.MemoryRecord

	now    func() time.Time
	logger *zap.Logger
}

// InMemoryStoreConfig configures an InMemoryStore.
type InMemoryStoreConfig struct {
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(config InMemoryStoreConfig, logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &InMemoryStore{
		now:    now,
		logger: logger.With(zap.String("component", "memory_store")),
	}
}

// Insert appends a record, assigning its id and creation time.
func (s *InMemoryStore) Insert(ctx context.Context, rec *types.MemoryRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", types.NewStoreUnavailableError(err)
	}
	rec.ID = newRecordID()
	rec.CreatedAt = s.now().UTC()
	if rec.Importance == "" {
		rec.Importance = types.ImportanceMedium
	}

	s.mu.Lock()
	// Stored by value so later caller mutations cannot reach the record.
	s.records = append(s.records, cloneRecord(rec))
	total := len(s.records)
	s.mu.Unlock()

	s.logger.Debug("record inserted",
		zap.String("id", rec.ID),
		zap.String("owner", rec.Owner),
		zap.String("kind", string(rec.Kind)),
		zap.Int("total", total))
	return rec.ID, nil
}

// Query returns matching records ordered by created_at ascending. Insertion
// order breaks timestamp ties, so reads within one mission reflect write
// order even under a coarse clock.
func (s *InMemoryStore) Query(ctx context.Context, f Filter) ([]types.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreUnavailableError(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.MemoryRecord, 0)
	for i := range s.records {
		if !f.matches(&s.records[i]) {
			continue
		}
		out = append(out, cloneRecord(&s.records[i]))
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of records matching the filter.
func (s *InMemoryStore) Count(ctx context.Context, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, types.NewStoreUnavailableError(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.records {
		if f.matches(&s.records[i]) {
			n++
		}
	}
	return n, nil
}

func cloneRecord(rec *types.MemoryRecord) types.MemoryRecord {
	out := *rec
	if rec.Embedding != nil {
		out.Embedding = append([]float64(nil), rec.Embedding...)
	}
	if rec.Tags != nil {
		out.Tags = append([]string(nil), rec.Tags...)
	}
	return out
}

// newRecordID returns a time-ordered identifier. UUIDv7 keeps ids
// monotonically orderable; the random fallback only fires if the system
// entropy source fails.
func newRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
