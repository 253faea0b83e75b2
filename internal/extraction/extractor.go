package extraction

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/utils"
)

// Entity is a named thing the extractor surfaced from interaction text.
type Entity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Relation is a subject-predicate-object triple with optional character
// spans pointing back into the source text.
type Relation struct {
	Subject       string           `json:"subject"`
	Predicate     string           `json:"predicate"`
	Object        string           `json:"object"`
	Confidence    float64          `json:"confidence"`
	EvidenceSpans []map[string]any `json:"evidence_spans,omitempty"`
}

// Topic is a low-commitment discussion label.
type Topic struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Candidates is the raw extractor output before ontology mapping.
type Candidates struct {
	InteractionID string     `json:"interaction_id"`
	Entities      []Entity   `json:"entities"`
	Relations     []Relation `json:"relations"`
	Topics        []Topic    `json:"topics"`
	Signature     string     `json:"signature"`
}

// Extractor turns interaction text into candidate entities, relations and
// topics. Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, interactionID, text string) (*Candidates, error)
}

const (
	BackendHTTP      = "http"
	BackendHeuristic = "heuristic"
)

type Service struct {
	log      *logger.Logger
	backend  string
	endpoint string
	httpc    *http.Client
	fallback bool
}

// NewService builds an extraction service with an explicit backend.
func NewService(log *logger.Logger, backend, endpoint string, timeout time.Duration, heuristicFallback bool) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("extraction: logger is required")
	}
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = BackendHeuristic
	}
	if backend == BackendHTTP && strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("extraction: http backend requires an endpoint")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		log:      log.With("service", "extraction"),
		backend:  backend,
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		httpc:    &http.Client{Timeout: timeout},
		fallback: heuristicFallback,
	}, nil
}

// NewFromEnv configures the extractor from the environment. The backend
// defaults to http when EXTRACTOR_ENDPOINT is set, heuristic otherwise.
func NewFromEnv(log *logger.Logger) (*Service, error) {
	endpoint := utils.GetEnv("EXTRACTOR_ENDPOINT", "", log)
	backend := utils.GetEnv("EXTRACTOR_BACKEND", "", log)
	if backend == "" {
		if endpoint != "" {
			backend = BackendHTTP
		} else {
			backend = BackendHeuristic
		}
	}
	timeout := time.Duration(utils.GetEnvAsInt("EXTRACTOR_TIMEOUT_SECONDS", 20, log)) * time.Second
	fallback := utils.GetEnvAsBool("EXTRACTOR_HEURISTIC_FALLBACK", true, log)
	return NewService(log, backend, endpoint, timeout, fallback)
}

// Extract runs the configured backend and, when permitted, rescues a backend
// failure with the deterministic heuristic.
func (s *Service) Extract(ctx context.Context, interactionID, text string) (*Candidates, error) {
	switch s.backend {
	case BackendHeuristic:
		return heuristicExtract(interactionID, text), nil
	case BackendHTTP:
		out, err := s.extractViaHTTP(ctx, interactionID, text)
		if err == nil {
			return out, nil
		}
		if s.fallback {
			s.log.Warn("extraction backend failed, using heuristic fallback", "endpoint", s.endpoint, "error", err)
			return heuristicExtract(interactionID, text), nil
		}
		return nil, err
	default:
		if s.fallback {
			s.log.Warn("unknown extraction backend, using heuristic fallback", "backend", s.backend)
			return heuristicExtract(interactionID, text), nil
		}
		return nil, fmt.Errorf("extraction: unknown backend %q", s.backend)
	}
}

func (s *Service) extractViaHTTP(ctx context.Context, interactionID, text string) (*Candidates, error) {
	payload, err := json.Marshal(map[string]string{
		"interaction_id": interactionID,
		"text":           text,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: marshal request: %w", err)
	}
	url := s.endpoint + "/extract"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("extraction: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction: call %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("extraction: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("extraction: %s returned status %d", url, resp.StatusCode)
	}

	var out Candidates
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("extraction: decode response: %w", err)
	}
	return normalizeCandidates(interactionID, &out), nil
}

func normalizeCandidates(interactionID string, c *Candidates) *Candidates {
	c.InteractionID = interactionID
	if c.Entities == nil {
		c.Entities = []Entity{}
	}
	if c.Relations == nil {
		c.Relations = []Relation{}
	}
	if c.Topics == nil {
		c.Topics = []Topic{}
	}
	if c.Signature == "" {
		raw, _ := json.Marshal(c)
		c.Signature = Signature(string(raw))
	}
	return c
}

// Signature fingerprints extractor input or output for dedup and audit.
func Signature(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var wordTrim = ".,:;!?()[]{}\"'"

func titleCase(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// heuristicExtract is the deterministic rescue path. Unique tokens longer
// than three characters become topics and low-confidence entities. Text that
// mentions "joined" or "new role" yields a single employment_change relation.
func heuristicExtract(interactionID, text string) *Candidates {
	seen := map[string]struct{}{}
	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, wordTrim)
		if len(w) <= 3 {
			continue
		}
		seen[strings.ToLower(w)] = struct{}{}
	}
	unique := make([]string, 0, len(seen))
	for w := range seen {
		unique = append(unique, w)
	}
	sort.Strings(unique)

	topics := make([]Topic, 0, 8)
	for _, w := range unique {
		if len(topics) == 8 {
			break
		}
		topics = append(topics, Topic{Label: w, Confidence: 0.55})
	}
	entities := make([]Entity, 0, 5)
	for _, w := range unique {
		if len(entities) == 5 {
			break
		}
		entities = append(entities, Entity{Name: titleCase(w), Type: "Topic", Confidence: 0.5})
	}

	var relations []Relation
	lower := strings.ToLower(text)
	if strings.Contains(lower, "joined") || strings.Contains(lower, "new role") {
		end := len(text)
		if end > 180 {
			end = 180
		}
		relations = append(relations, Relation{
			Subject:       "contact",
			Predicate:     "employment_change",
			Object:        "detected",
			Confidence:    0.91,
			EvidenceSpans: []map[string]any{{"start": 0, "end": end}},
		})
	}

	return &Candidates{
		InteractionID: interactionID,
		Entities:      entities,
		Relations:     relations,
		Topics:        topics,
		Signature:     Signature(text),
	}
}
