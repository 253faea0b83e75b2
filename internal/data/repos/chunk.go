package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

type ChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*domain.Chunk) ([]*domain.Chunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Chunk, error)
	ListByInteraction(ctx context.Context, tx *gorm.DB, interactionID uuid.UUID) ([]*domain.Chunk, error)
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.Chunk, error)
	DeleteCreatedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	DeleteByInteractionIDs(ctx context.Context, tx *gorm.DB, interactionIDs []uuid.UUID) error

	UpsertEmbeddings(ctx context.Context, tx *gorm.DB, rows []*domain.Embedding) error
	GetEmbeddingsByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*domain.Embedding, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) Create(ctx context.Context, tx *gorm.DB, rows []*domain.Chunk) ([]*domain.Chunk, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*domain.Chunk{}, nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	if err := t.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Chunk, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Chunk
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ListByInteraction(ctx context.Context, tx *gorm.DB, interactionID uuid.UUID) ([]*domain.Chunk, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Chunk
	if err := t.WithContext(ctx).
		Where("interaction_id = ?", interactionID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.Chunk, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Chunk
	if err := t.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) DeleteCreatedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&domain.Chunk{})
	return res.RowsAffected, res.Error
}

func (r *chunkRepo) DeleteByInteractionIDs(ctx context.Context, tx *gorm.DB, interactionIDs []uuid.UUID) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(interactionIDs) == 0 {
		return nil
	}
	return t.WithContext(ctx).Where("interaction_id IN ?", interactionIDs).Delete(&domain.Chunk{}).Error
}

func (r *chunkRepo) UpsertEmbeddings(ctx context.Context, tx *gorm.DB, rows []*domain.Embedding) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chunk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding", "embedding_model"}),
	}).Create(&rows).Error
}

func (r *chunkRepo) GetEmbeddingsByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*domain.Embedding, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Embedding
	if len(chunkIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).Where("chunk_id IN ?", chunkIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
