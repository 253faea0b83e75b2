package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

type ScoreSnapshotRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *domain.ScoreSnapshot) error
	GetLatestByContact(ctx context.Context, tx *gorm.DB, contactID string) (*domain.ScoreSnapshot, error)
	ListByDate(ctx context.Context, tx *gorm.DB, asof string) ([]*domain.ScoreSnapshot, error)
	LatestByContacts(ctx context.Context, tx *gorm.DB, contactIDs []string) (map[string]*domain.ScoreSnapshot, error)
	DeleteByContact(ctx context.Context, tx *gorm.DB, contactID string) (int64, error)
}

type scoreSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScoreSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) ScoreSnapshotRepo {
	return &scoreSnapshotRepo{db: db, log: baseLog.With("repo", "ScoreSnapshotRepo")}
}

// Upsert is last-writer-wins on (contact_id, asof): recomputing the same day
// replaces that day's snapshot.
func (r *scoreSnapshotRepo) Upsert(ctx context.Context, tx *gorm.DB, row *domain.ScoreSnapshot) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return t.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "contact_id"}, {Name: "asof"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"relationship_score", "priority_score", "components_json", "updated_at",
		}),
	}).Create(row).Error
}

func (r *scoreSnapshotRepo) GetLatestByContact(ctx context.Context, tx *gorm.DB, contactID string) (*domain.ScoreSnapshot, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.ScoreSnapshot
	if err := t.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("asof DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *scoreSnapshotRepo) ListByDate(ctx context.Context, tx *gorm.DB, asof string) ([]*domain.ScoreSnapshot, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.ScoreSnapshot
	if err := t.WithContext(ctx).
		Where("asof = ?", asof).
		Order("priority_score DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *scoreSnapshotRepo) LatestByContacts(ctx context.Context, tx *gorm.DB, contactIDs []string) (map[string]*domain.ScoreSnapshot, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	out := make(map[string]*domain.ScoreSnapshot, len(contactIDs))
	if len(contactIDs) == 0 {
		return out, nil
	}
	var rows []*domain.ScoreSnapshot
	if err := t.WithContext(ctx).
		Where("contact_id IN ?", contactIDs).
		Order("contact_id ASC, asof DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, ok := out[row.ContactID]; !ok {
			out[row.ContactID] = row
		}
	}
	return out, nil
}

func (r *scoreSnapshotRepo) DeleteByContact(ctx context.Context, tx *gorm.DB, contactID string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(ctx).Where("contact_id = ?", contactID).Delete(&domain.ScoreSnapshot{})
	return res.RowsAffected, res.Error
}
