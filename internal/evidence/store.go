package evidence

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

// SearchResult is one similarity hit.
type SearchResult struct {
	ChunkID       uuid.UUID      `json:"chunk_id"`
	InteractionID uuid.UUID      `json:"interaction_id"`
	Text          string         `json:"text"`
	Span          map[string]any `json:"span_json"`
	Score         float64        `json:"score"`
}

// Store owns chunk persistence and similarity search. Postgres with pgvector
// is the fast path; environments without the vector operator fall back to
// in-process cosine over hash vectors.
type Store struct {
	db       *gorm.DB
	chunks   repos.ChunkRepo
	embedder *Embedder
	log      *logger.Logger
}

func NewStore(db *gorm.DB, chunks repos.ChunkRepo, embedder *Embedder, baseLog *logger.Logger) *Store {
	return &Store{
		db:       db,
		chunks:   chunks,
		embedder: embedder,
		log:      baseLog.With("service", "EvidenceStore"),
	}
}

func (s *Store) Embedder() *Embedder { return s.embedder }

// PutChunks persists the chunk specs for one interaction and indexes their
// embeddings. Returns the created chunk rows in document order.
func (s *Store) PutChunks(ctx context.Context, interactionID uuid.UUID, specs []ChunkSpec) ([]*domain.Chunk, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	rows := make([]*domain.Chunk, 0, len(specs))
	texts := make([]string, 0, len(specs))
	for _, spec := range specs {
		span, err := json.Marshal(spec.Span)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &domain.Chunk{
			InteractionID: interactionID,
			ChunkType:     spec.ChunkType,
			Text:          spec.Text,
			Span:          datatypes.JSON(span),
		})
		texts = append(texts, spec.Text)
	}
	rows, err := s.chunks.Create(ctx, nil, rows)
	if err != nil {
		return nil, err
	}

	vectors := s.embedder.Embed(ctx, texts)
	embeddings := make([]*domain.Embedding, 0, len(rows))
	for i, row := range rows {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			continue
		}
		embeddings = append(embeddings, &domain.Embedding{
			ChunkID:        row.ID,
			Embedding:      pgvector.NewVector(vectors[i]),
			EmbeddingModel: s.embedder.Model(),
		})
	}
	if err := s.chunks.UpsertEmbeddings(ctx, nil, embeddings); err != nil {
		return nil, err
	}
	return rows, nil
}

type searchRow struct {
	ID            uuid.UUID      `gorm:"column:id"`
	InteractionID uuid.UUID      `gorm:"column:interaction_id"`
	Text          string         `gorm:"column:text"`
	Span          datatypes.JSON `gorm:"column:span_json"`
	ContactIDs    datatypes.JSON `gorm:"column:contact_ids_json"`
	Distance      float64        `gorm:"column:distance"`
}

func contactMatch(contactIDs datatypes.JSON, contactID string) bool {
	if contactID == "" {
		return true
	}
	if len(contactIDs) == 0 {
		return false
	}
	var ids []string
	if err := json.Unmarshal(contactIDs, &ids); err != nil {
		return false
	}
	for _, id := range ids {
		if id == contactID {
			return true
		}
	}
	return false
}

func spanMap(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

// SimilaritySearch returns up to topK chunks scored in [0,1], restricted to
// interactions that list contactID (no restriction when empty).
func (s *Store) SimilaritySearch(ctx context.Context, query string, contactID string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}
	vectors := s.embedder.Embed(ctx, []string{query})
	if len(vectors) == 0 {
		return nil, nil
	}
	queryVec := vectors[0]
	fetchLimit := topK * 20
	if fetchLimit < 200 {
		fetchLimit = 200
	}

	var rows []searchRow
	err := s.db.WithContext(ctx).Raw(`
SELECT chunks.id, chunks.interaction_id, chunks.text, chunks.span_json,
       interactions.contact_ids_json,
       embeddings.embedding <=> ? AS distance
FROM chunks
JOIN embeddings ON embeddings.chunk_id = chunks.id
JOIN interactions ON interactions.id = chunks.interaction_id
ORDER BY distance ASC
LIMIT ?
`, pgvector.NewVector(queryVec), fetchLimit).Scan(&rows).Error
	if err != nil {
		s.log.Warn("vector operator unavailable, using in-process cosine", "error", err)
		return s.fallbackSearch(ctx, queryVec, contactID, topK)
	}

	ranked := make([]SearchResult, 0, topK)
	for _, row := range rows {
		if !contactMatch(row.ContactIDs, contactID) {
			continue
		}
		score := 1.0 - row.Distance
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		ranked = append(ranked, SearchResult{
			ChunkID:       row.ID,
			InteractionID: row.InteractionID,
			Text:          row.Text,
			Span:          spanMap(row.Span),
			Score:         score,
		})
		if len(ranked) >= topK {
			break
		}
	}
	return ranked, nil
}

func (s *Store) fallbackSearch(ctx context.Context, queryVec []float32, contactID string, topK int) ([]SearchResult, error) {
	fetchLimit := topK * 20
	if fetchLimit < 200 {
		fetchLimit = 200
	}
	chunks, err := s.chunks.ListRecent(ctx, nil, fetchLimit)
	if err != nil {
		return nil, err
	}
	interactionIDs := make([]uuid.UUID, 0, len(chunks))
	seen := map[uuid.UUID]struct{}{}
	for _, c := range chunks {
		if _, ok := seen[c.InteractionID]; !ok {
			seen[c.InteractionID] = struct{}{}
			interactionIDs = append(interactionIDs, c.InteractionID)
		}
	}

	contactByInteraction := map[uuid.UUID]datatypes.JSON{}
	if len(interactionIDs) > 0 {
		var interactions []*domain.Interaction
		if err := s.db.WithContext(ctx).Where("id IN ?", interactionIDs).Find(&interactions).Error; err != nil {
			return nil, err
		}
		for _, it := range interactions {
			contactByInteraction[it.ID] = it.ContactIDs
		}
	}

	var scored []SearchResult
	for _, c := range chunks {
		if !contactMatch(contactByInteraction[c.InteractionID], contactID) {
			continue
		}
		candidate := HashVector(c.Text, len(queryVec))
		sim := cosineSimilarity(queryVec, candidate)
		if sim < 0 {
			sim = 0
		}
		scored = append(scored, SearchResult{
			ChunkID:       c.ID,
			InteractionID: c.InteractionID,
			Text:          c.Text,
			Span:          spanMap(c.Span),
			Score:         sim,
		})
	}
	sortResultsByScore(scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortResultsByScore(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}
