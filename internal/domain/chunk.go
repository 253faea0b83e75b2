package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

const (
	ChunkTypeEmailBody         = "email_body"
	ChunkTypeTranscriptSegment = "transcript_segment"
	ChunkTypeNewsParagraph     = "news_paragraph"
)

// Chunk is an immutable text segment of an interaction with a known span.
type Chunk struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"chunk_id"`
	InteractionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"interaction_id"`
	Interaction   *Interaction   `gorm:"constraint:OnDelete:CASCADE;foreignKey:InteractionID;references:ID" json:"interaction,omitempty"`
	ChunkType     string         `gorm:"column:chunk_type;size:64;not null" json:"chunk_type"`
	Text          string         `gorm:"column:text;type:text;not null" json:"text"`
	Span          datatypes.JSON `gorm:"type:jsonb;column:span_json;not null" json:"span_json"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null;default:now()" json:"created_at"`
}

func (Chunk) TableName() string { return "chunks" }

// Embedding stores the dense vector for one chunk. Replaced only on
// embedding-model migration.
type Embedding struct {
	ChunkID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"chunk_id"`
	Chunk          *Chunk          `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChunkID;references:ID" json:"chunk,omitempty"`
	Embedding      pgvector.Vector `gorm:"type:vector(1536);column:embedding" json:"-"`
	EmbeddingModel string          `gorm:"column:embedding_model;size:128;not null" json:"embedding_model"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null;default:now()" json:"created_at"`
}

func (Embedding) TableName() string { return "embeddings" }

// ChunkSpan is the canonical span payload. Email chunks carry paragraph
// ranges, transcript chunks line ranges, news chunks character offsets.
type ChunkSpan struct {
	Start          *int `json:"start,omitempty"`
	End            *int `json:"end,omitempty"`
	ParagraphStart *int `json:"paragraph_start,omitempty"`
	ParagraphEnd   *int `json:"paragraph_end,omitempty"`
	LineStart      *int `json:"line_start,omitempty"`
	LineEnd        *int `json:"line_end,omitempty"`
}
