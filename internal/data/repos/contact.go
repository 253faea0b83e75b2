package repos

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

type ContactRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *domain.Contact) error
	GetByID(ctx context.Context, tx *gorm.DB, contactID string) (*domain.Contact, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*domain.Contact, error)
	GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*domain.Contact, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.Contact, error)
	Delete(ctx context.Context, tx *gorm.DB, contactID string) error
	DeleteByEmails(ctx context.Context, tx *gorm.DB, emails []string) (int64, error)
}

type contactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContactRepo(db *gorm.DB, baseLog *logger.Logger) ContactRepo {
	return &contactRepo{db: db, log: baseLog.With("repo", "ContactRepo")}
}

func (r *contactRepo) Upsert(ctx context.Context, tx *gorm.DB, row *domain.Contact) error {
	t := tx
	if t == nil {
		t = r.db
	}
	row.PrimaryEmail = strings.ToLower(strings.TrimSpace(row.PrimaryEmail))
	return t.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "contact_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"primary_email", "display_name", "company", "owner_user_id", "use_sensitive_in_drafts", "updated_at",
		}),
	}).Create(row).Error
}

func (r *contactRepo) GetByID(ctx context.Context, tx *gorm.DB, contactID string) (*domain.Contact, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.Contact
	if err := t.WithContext(ctx).Where("contact_id = ?", contactID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *contactRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*domain.Contact, error) {
	rows, err := r.GetByEmails(ctx, tx, []string{email})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *contactRepo) GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*domain.Contact, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Contact
	if len(emails) == 0 {
		return out, nil
	}
	normalized := make([]string, 0, len(emails))
	for _, email := range emails {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(email)))
	}
	if err := t.WithContext(ctx).Where("primary_email IN ?", normalized).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contactRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.Contact, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Contact
	if err := t.WithContext(ctx).Order("contact_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contactRepo) Delete(ctx context.Context, tx *gorm.DB, contactID string) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).Where("contact_id = ?", contactID).Delete(&domain.Contact{}).Error
}

func (r *contactRepo) DeleteByEmails(ctx context.Context, tx *gorm.DB, emails []string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(emails) == 0 {
		return 0, nil
	}
	res := t.WithContext(ctx).Where("primary_email IN ?", emails).Delete(&domain.Contact{})
	return res.RowsAffected, res.Error
}
