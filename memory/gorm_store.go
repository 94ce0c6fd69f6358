package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/crewmind-ai/crewmind/types"
)

// recordRow is the gorm model backing MemoryRecord. Embedding and tags are
// stored as serialized JSON columns; tag intersection is applied in Go after
// the indexed equality filters narrow the candidate set.
type recordRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Owner      string    `gorm:"size:64;index:idx_records_owner"`
	MissionID  string    `gorm:"size:128;index:idx_records_mission"`
	Kind       string    `gorm:"size:32;index:idx_records_kind"`
	Content    string    `gorm:"type:text"`
	Embedding  string    `gorm:"type:text"`
	Importance string    `gorm:"size:16"`
	Tags       string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index:idx_records_created"`
}

// TableName pins the table name independent of gorm naming strategy.
func (recordRow) TableName() string { return "memory_records" }

// GormStore is a Store backed by a SQL database through gorm. The sqlite
// driver covers single-node deployments; nothing in the schema is
// sqlite-specific.
type GormStore struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// GormStoreConfig configures a GormStore.
type GormStoreConfig struct {
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// NewGormStore migrates the backing table and returns a store over db.
func NewGormStore(db *gorm.DB, config GormStoreConfig, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate memory_records: %w", err)
	}
	return &GormStore{
		db:     db,
		now:    now,
		logger: logger.With(zap.String("component", "memory_store")),
	}, nil
}

// Insert appends a record, assigning its id and creation time. A failed
// write surfaces as STORE_UNAVAILABLE; it is never silently dropped.
func (s *GormStore) Insert(ctx context.Context, rec *types.MemoryRecord) (string, error) {
	rec.ID = newRecordID()
	rec.CreatedAt = s.now().UTC()
	if rec.Importance == "" {
		rec.Importance = types.ImportanceMedium
	}

	row, err := toRow(rec)
	if err != nil {
		return "", types.NewError(types.ErrInternal, "encode record").WithCause(err)
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.logger.Error("record insert failed",
			zap.String("owner", rec.Owner),
			zap.String("kind", string(rec.Kind)),
			zap.Error(err))
		return "", types.NewStoreUnavailableError(err)
	}

	s.logger.Debug("record inserted",
		zap.String("id", rec.ID),
		zap.String("owner", rec.Owner),
		zap.String("kind", string(rec.Kind)))
	return rec.ID, nil
}

// Query returns matching records ordered by created_at ascending.
func (s *GormStore) Query(ctx context.Context, f Filter) ([]types.MemoryRecord, error) {
	var rows []recordRow
	if err := s.scopedQuery(ctx, f).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, types.NewStoreUnavailableError(err)
	}

	out := make([]types.MemoryRecord, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			return nil, types.NewError(types.ErrInternal, "decode record "+rows[i].ID).WithCause(err)
		}
		if len(f.AnyTags) > 0 && types.TagOverlap(f.AnyTags, rec.Tags) == 0 {
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of records matching the filter.
func (s *GormStore) Count(ctx context.Context, f Filter) (int64, error) {
	if len(f.AnyTags) > 0 {
		// Tag intersection cannot be pushed into SQL; count via Query.
		recs, err := s.Query(ctx, f)
		if err != nil {
			return 0, err
		}
		return int64(len(recs)), nil
	}
	var n int64
	if err := s.scopedQuery(ctx, f).Count(&n).Error; err != nil {
		return 0, types.NewStoreUnavailableError(err)
	}
	return n, nil
}

func (s *GormStore) scopedQuery(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&recordRow{})
	if len(f.Owners) > 0 {
		q = q.Where("owner IN ?", f.Owners)
	}
	if f.MissionID != "" {
		q = q.Where("mission_id = ?", f.MissionID)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", string(f.Kind))
	}
	return q
}

func toRow(rec *types.MemoryRecord) (*recordRow, error) {
	row := &recordRow{
		ID:         rec.ID,
		Owner:      rec.Owner,
		MissionID:  rec.MissionID,
		Kind:       string(rec.Kind),
		Content:    rec.Content,
		Importance: string(rec.Importance),
		CreatedAt:  rec.CreatedAt,
	}
	if rec.Embedding != nil {
		b, err := json.Marshal(rec.Embedding)
		if err != nil {
			return nil, err
		}
		row.Embedding = string(b)
	}
	if rec.Tags != nil {
		b, err := json.Marshal(rec.Tags)
		if err != nil {
			return nil, err
		}
		row.Tags = string(b)
	}
	return row, nil
}

func fromRow(row *recordRow) (types.MemoryRecord, error) {
	rec := types.MemoryRecord{
		ID:         row.ID,
		Owner:      row.Owner,
		MissionID:  row.MissionID,
		Kind:       types.RecordKind(row.Kind),
		Content:    row.Content,
		Importance: types.Importance(row.Importance),
		CreatedAt:  row.CreatedAt,
	}
	if row.Embedding != "" {
		if err := json.Unmarshal([]byte(row.Embedding), &rec.Embedding); err != nil {
			return rec, err
		}
	}
	if row.Tags != "" {
		if err := json.Unmarshal([]byte(row.Tags), &rec.Tags); err != nil {
			return rec, err
		}
	}
	return rec, nil
}
