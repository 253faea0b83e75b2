package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

type RawEventRepo interface {
	// GetOrCreate persists the event unless (source_system, external_id)
	// already exists. The bool reports whether a new row was written.
	GetOrCreate(ctx context.Context, tx *gorm.DB, row *domain.RawEvent) (*domain.RawEvent, bool, error)
	GetBySourceExternal(ctx context.Context, tx *gorm.DB, sourceSystem, externalID string) (*domain.RawEvent, error)
	DeleteReceivedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type rawEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRawEventRepo(db *gorm.DB, baseLog *logger.Logger) RawEventRepo {
	return &rawEventRepo{db: db, log: baseLog.With("repo", "RawEventRepo")}
}

func (r *rawEventRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, row *domain.RawEvent) (*domain.RawEvent, bool, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	existing, err := r.GetBySourceExternal(ctx, t, row.SourceSystem, row.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if err := t.WithContext(ctx).Create(row).Error; err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (r *rawEventRepo) GetBySourceExternal(ctx context.Context, tx *gorm.DB, sourceSystem, externalID string) (*domain.RawEvent, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.RawEvent
	if err := t.WithContext(ctx).
		Where("source_system = ? AND external_id = ?", sourceSystem, externalID).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *rawEventRepo) DeleteReceivedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(ctx).Where("received_at < ?", cutoff).Delete(&domain.RawEvent{})
	return res.RowsAffected, res.Error
}
