package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/utils"
)

// Proposer turns a bundle of candidate claims into memory operations.
type Proposer interface {
	ProposeOps(ctx context.Context, bundle *Bundle) ([]domain.MemoryOp, error)
}

const (
	BackendHTTP  = "http"
	BackendRules = "rules"
)

type Service struct {
	log      *logger.Logger
	backend  string
	endpoint string
	httpc    *http.Client
	fallback bool
}

func NewService(log *logger.Logger, backend, endpoint string, timeout time.Duration, rulesFallback bool) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("memory: logger is required")
	}
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = BackendRules
	}
	if backend == BackendHTTP && strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("memory: http backend requires an endpoint")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		log:      log.With("service", "memory"),
		backend:  backend,
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		httpc:    &http.Client{Timeout: timeout},
		fallback: rulesFallback,
	}, nil
}

// NewFromEnv configures the proposer from the environment. The backend
// defaults to http when MEMORY_ENDPOINT is set, rules otherwise.
func NewFromEnv(log *logger.Logger) (*Service, error) {
	endpoint := utils.GetEnv("MEMORY_ENDPOINT", "", log)
	backend := utils.GetEnv("MEMORY_BACKEND", "", log)
	if backend == "" {
		if endpoint != "" {
			backend = BackendHTTP
		} else {
			backend = BackendRules
		}
	}
	timeout := time.Duration(utils.GetEnvAsInt("MEMORY_TIMEOUT_SECONDS", 20, log)) * time.Second
	fallback := utils.GetEnvAsBool("MEMORY_RULES_FALLBACK", true, log)
	return NewService(log, backend, endpoint, timeout, fallback)
}

func (s *Service) ProposeOps(ctx context.Context, bundle *Bundle) ([]domain.MemoryOp, error) {
	if bundle == nil {
		return nil, fmt.Errorf("memory: bundle is required")
	}
	switch s.backend {
	case BackendRules:
		return normalizeOps(rulesOps(bundle), bundle.AutoAcceptThreshold), nil
	case BackendHTTP:
		ops, err := s.proposeViaHTTP(ctx, bundle)
		if err == nil {
			return normalizeOps(ops, bundle.AutoAcceptThreshold), nil
		}
		if s.fallback {
			s.log.Warn("memory backend failed, using rules fallback", "endpoint", s.endpoint, "error", err)
			return normalizeOps(rulesOps(bundle), bundle.AutoAcceptThreshold), nil
		}
		return nil, err
	default:
		if s.fallback {
			s.log.Warn("unknown memory backend, using rules fallback", "backend", s.backend)
			return normalizeOps(rulesOps(bundle), bundle.AutoAcceptThreshold), nil
		}
		return nil, fmt.Errorf("memory: unknown backend %q", s.backend)
	}
}

func (s *Service) proposeViaHTTP(ctx context.Context, bundle *Bundle) ([]domain.MemoryOp, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("memory: marshal bundle: %w", err)
	}
	url := s.endpoint + "/propose_ops"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("memory: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("memory: call %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("memory: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("memory: %s returned status %d", url, resp.StatusCode)
	}

	var ops []domain.MemoryOp
	if err := json.Unmarshal(body, &ops); err != nil {
		return nil, fmt.Errorf("memory: decode response: %w", err)
	}
	return ops, nil
}

// rulesOps is the deterministic fallback: every candidate becomes an ADD.
func rulesOps(bundle *Bundle) []domain.MemoryOp {
	ops := make([]domain.MemoryOp, 0, len(bundle.CandidateClaims))
	for _, claim := range bundle.CandidateClaims {
		ops = append(ops, domain.MemoryOp{
			Op:           domain.MemoryOpAdd,
			Claim:        claim.Clone(),
			EvidenceRefs: append([]domain.EvidenceRef(nil), claim.EvidenceRefs...),
		})
	}
	return ops
}

// normalizeOps enforces the proposer contract regardless of backend: claims
// at or above the threshold are auto-accepted unless already accepted, REJECT
// ops mark their claim rejected, and duplicate ops are dropped.
func normalizeOps(ops []domain.MemoryOp, threshold float64) []domain.MemoryOp {
	if threshold <= 0 {
		threshold = DefaultAutoAcceptThr
	}
	out := make([]domain.MemoryOp, 0, len(ops))
	seen := map[string]struct{}{}
	for _, op := range ops {
		if op.Op == "" {
			op.Op = domain.MemoryOpAdd
		}
		claim := op.Claim.Clone()
		switch {
		case op.Op == domain.MemoryOpReject:
			claim.Status = domain.ClaimStatusRejected
		case claim.Confidence >= threshold && claim.Status != domain.ClaimStatusAccepted:
			claim.Status = domain.ClaimStatusAccepted
		case claim.Status == "":
			claim.Status = domain.ClaimStatusProposed
		}
		op.Claim = claim
		if len(op.EvidenceRefs) == 0 {
			op.EvidenceRefs = append([]domain.EvidenceRef(nil), claim.EvidenceRefs...)
		}
		key := opKey(op)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, op)
	}
	return out
}

// opKey canonicalizes the claim value so duplicate proposals collapse even
// when key order or label casing differ.
func opKey(op domain.MemoryOp) string {
	payload := make(map[string]any, len(op.Claim.Value))
	for k, v := range op.Claim.Value {
		if s, ok := v.(string); ok {
			payload[k] = strings.ToLower(strings.Join(strings.Fields(s), " "))
		} else {
			payload[k] = v
		}
	}
	serialized, err := json.Marshal(payload)
	if err != nil {
		serialized = []byte(op.Claim.ClaimID)
	}
	return op.Claim.ClaimType + "|" + string(serialized) + "|" + op.Op
}
