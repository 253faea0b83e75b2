package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

type InteractionRepo interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, row *domain.Interaction) (*domain.Interaction, bool, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Interaction, error)
	GetBySourceExternal(ctx context.Context, tx *gorm.DB, sourceSystem, externalID string) (*domain.Interaction, error)
	// ListRecent returns interactions ordered newest-first, up to limit.
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.Interaction, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*domain.Interaction, error)
	SetContactIDs(ctx context.Context, tx *gorm.DB, id uuid.UUID, contactIDs []string) error
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status, processingError string) error
}

type interactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInteractionRepo(db *gorm.DB, baseLog *logger.Logger) InteractionRepo {
	return &interactionRepo{db: db, log: baseLog.With("repo", "InteractionRepo")}
}

func (r *interactionRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, row *domain.Interaction) (*domain.Interaction, bool, error) {
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

func (r *interactionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Interaction, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var rows []*domain.Interaction
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *interactionRepo) GetBySourceExternal(ctx context.Context, tx *gorm.DB, sourceSystem, externalID string) (*domain.Interaction, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.Interaction
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

func (r *interactionRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.Interaction, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Interaction
	if err := t.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *interactionRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*domain.Interaction, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Interaction
	q := t.WithContext(ctx).Where("status = ?", status).Order("timestamp ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *interactionRepo) SetContactIDs(ctx context.Context, tx *gorm.DB, id uuid.UUID, contactIDs []string) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if contactIDs == nil {
		contactIDs = []string{}
	}
	payload, err := json.Marshal(contactIDs)
	if err != nil {
		return err
	}
	return t.WithContext(ctx).Model(&domain.Interaction{}).
		Where("id = ?", id).
		Update("contact_ids_json", payload).Error
}

func (r *interactionRepo) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status, processingError string) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).Model(&domain.Interaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"processing_error": processingError,
		}).Error
}

// ContactIDsOf decodes the contact_ids_json column.
func ContactIDsOf(row *domain.Interaction) []string {
	if row == nil || len(row.ContactIDs) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(row.ContactIDs, &ids); err != nil {
		return nil
	}
	return ids
}

// ParticipantsOf decodes the participants_json column.
func ParticipantsOf(row *domain.Interaction) domain.ParticipantSet {
	var set domain.ParticipantSet
	if row == nil || len(row.Participants) == 0 {
		return set
	}
	_ = json.Unmarshal(row.Participants, &set)
	return set
}

// WithinDays reports whether the interaction happened inside the lookback
// window ending at now.
func WithinDays(row *domain.Interaction, now time.Time, days int) bool {
	if row == nil {
		return false
	}
	return now.Sub(row.Timestamp) <= time.Duration(days)*24*time.Hour
}
