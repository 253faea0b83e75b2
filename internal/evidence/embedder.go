package evidence

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/sony/gobreaker"

	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/openai"
	"github.com/luxcrm/relay/internal/utils"
)

const hashFallbackModel = "hash-v1"

// Embedder produces dense vectors. Provider outages trip the breaker and
// every text still gets a deterministic hash-derived vector so chunks are
// never dropped from the index.
type Embedder struct {
	log     *logger.Logger
	llm     openai.Client
	breaker *gobreaker.CircuitBreaker
	dim     int
}

func NewEmbedder(llm openai.Client, baseLog *logger.Logger) *Embedder {
	log := baseLog.With("service", "Embedder")
	return &Embedder{
		log: log,
		llm: llm,
		dim: utils.GetEnvAsInt("EMBEDDING_DIM", 1536, baseLog),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "embeddings",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("embedding breaker state change", "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (e *Embedder) Dim() int { return e.dim }

// Model names the vectors' provenance so a later model migration can find
// rows to re-embed.
func (e *Embedder) Model() string {
	if e.llm != nil {
		return e.llm.EmbedModel()
	}
	return hashFallbackModel
}

// Embed returns one vector per input, falling back to hash vectors when the
// provider is absent, failing, or tripped.
func (e *Embedder) Embed(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	if e.llm != nil {
		out, err := e.breaker.Execute(func() (interface{}, error) {
			return e.llm.Embed(ctx, texts)
		})
		if err == nil {
			if vecs, ok := out.([][]float32); ok && len(vecs) == len(texts) {
				return vecs
			}
		} else {
			e.log.Warn("provider embedding failed, using hash vectors", "error", err, "count", len(texts))
		}
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = HashVector(text, e.dim)
	}
	return vecs
}

// HashVector derives a deterministic vector from the text's sha256 digest,
// cycling digest bytes across the requested dimension.
func HashVector(text string, dim int) []float32 {
	digest := sha256.Sum256([]byte(text))
	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		out[i] = float32(digest[i%len(digest)]) / 255.0
	}
	return out
}
