package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

type DraftRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *domain.Draft) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Draft, error)
	LatestByContact(ctx context.Context, tx *gorm.DB, contactID string) (*domain.Draft, error)
	ListByContact(ctx context.Context, tx *gorm.DB, contactID string, limit int) ([]*domain.Draft, error)
	ListByStatuses(ctx context.Context, tx *gorm.DB, statuses []string, limit int) ([]*domain.Draft, error)
	Update(ctx context.Context, tx *gorm.DB, row *domain.Draft) error
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
	DeleteByContact(ctx context.Context, tx *gorm.DB, contactID string) (int64, error)
	DeleteCreatedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, statuses []string) (int64, error)
}

type draftRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDraftRepo(db *gorm.DB, baseLog *logger.Logger) DraftRepo {
	return &draftRepo{db: db, log: baseLog.With("repo", "DraftRepo")}
}

func (r *draftRepo) Create(ctx context.Context, tx *gorm.DB, row *domain.Draft) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return t.WithContext(ctx).Create(row).Error
}

func (r *draftRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Draft, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.Draft
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *draftRepo) LatestByContact(ctx context.Context, tx *gorm.DB, contactID string) (*domain.Draft, error) {
	rows, err := r.ListByContact(ctx, tx, contactID, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *draftRepo) ListByContact(ctx context.Context, tx *gorm.DB, contactID string, limit int) ([]*domain.Draft, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).Where("contact_id = ?", contactID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*domain.Draft
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *draftRepo) ListByStatuses(ctx context.Context, tx *gorm.DB, statuses []string, limit int) ([]*domain.Draft, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).Where("status IN ?", statuses).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*domain.Draft
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *draftRepo) Update(ctx context.Context, tx *gorm.DB, row *domain.Draft) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).Save(row).Error
}

func (r *draftRepo) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).Model(&domain.Draft{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *draftRepo) DeleteByContact(ctx context.Context, tx *gorm.DB, contactID string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(ctx).Where("contact_id = ?", contactID).Delete(&domain.Draft{})
	return res.RowsAffected, res.Error
}

func (r *draftRepo) DeleteCreatedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, statuses []string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).Where("created_at < ?", cutoff)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	res := q.Delete(&domain.Draft{})
	return res.RowsAffected, res.Error
}
