package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

type ResolutionTaskRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *domain.ResolutionTask) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.ResolutionTask, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*domain.ResolutionTask, error)
	ListByContact(ctx context.Context, tx *gorm.DB, contactID string) ([]*domain.ResolutionTask, error)
	OpenIdentityTaskByEmail(ctx context.Context, tx *gorm.DB, email string) (*domain.ResolutionTask, error)
	Update(ctx context.Context, tx *gorm.DB, row *domain.ResolutionTask) error
	DeleteByContact(ctx context.Context, tx *gorm.DB, contactID string) (int64, error)
}

type resolutionTaskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResolutionTaskRepo(db *gorm.DB, baseLog *logger.Logger) ResolutionTaskRepo {
	return &resolutionTaskRepo{db: db, log: baseLog.With("repo", "ResolutionTaskRepo")}
}

func (r *resolutionTaskRepo) Create(ctx context.Context, tx *gorm.DB, row *domain.ResolutionTask) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return t.WithContext(ctx).Create(row).Error
}

func (r *resolutionTaskRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.ResolutionTask, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.ResolutionTask
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *resolutionTaskRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*domain.ResolutionTask, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*domain.ResolutionTask
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *resolutionTaskRepo) ListByContact(ctx context.Context, tx *gorm.DB, contactID string) ([]*domain.ResolutionTask, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.ResolutionTask
	if err := t.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// OpenIdentityTaskByEmail matches on the normalized email stored in subject_key
// so repeated lookups for the same unknown sender reuse one task.
func (r *resolutionTaskRepo) OpenIdentityTaskByEmail(ctx context.Context, tx *gorm.DB, email string) (*domain.ResolutionTask, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.ResolutionTask
	if err := t.WithContext(ctx).
		Where("task_type = ? AND status = ? AND subject_key = ?",
			domain.TaskTypeIdentityResolution, domain.TaskStatusOpen, strings.ToLower(strings.TrimSpace(email))).
		Order("created_at ASC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *resolutionTaskRepo) Update(ctx context.Context, tx *gorm.DB, row *domain.ResolutionTask) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).Save(row).Error
}

func (r *resolutionTaskRepo) DeleteByContact(ctx context.Context, tx *gorm.DB, contactID string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(ctx).Where("contact_id = ?", contactID).Delete(&domain.ResolutionTask{})
	return res.RowsAffected, res.Error
}
