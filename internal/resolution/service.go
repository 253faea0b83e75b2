package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/errors"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

const (
	ActionAcceptProposed = "accept_proposed"
	ActionEditAndAccept  = "edit_and_accept"
	ActionRejectProposed = "reject_proposed"
)

// AuditEntry is appended to a task's audit log on resolution. Entries are
// immutable once written.
type AuditEntry struct {
	Action      string         `json:"action"`
	EditedValue map[string]any `json:"edited_value,omitempty"`
	ResolvedAt  time.Time      `json:"resolved_at"`
}

// Service owns the resolution queue: contradiction tasks, identity tasks and
// their terminal transitions.
type Service struct {
	log      *logger.Logger
	tasks    repos.ResolutionTaskRepo
	contacts repos.ContactRepo
	neo      *neo4jdb.Client
}

func NewService(log *logger.Logger, tasks repos.ResolutionTaskRepo, contacts repos.ContactRepo, neo *neo4jdb.Client) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("resolution: logger is required")
	}
	if tasks == nil {
		return nil, fmt.Errorf("resolution: task repo is required")
	}
	return &Service{log: log.With("service", "resolution"), tasks: tasks, contacts: contacts, neo: neo}, nil
}

// CreateTask opens a resolution task. Payload keys are JSON-serializable.
func (s *Service) CreateTask(ctx context.Context, contactID, taskType, proposedClaimID, currentClaimID string, payload map[string]any) (*domain.ResolutionTask, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("resolution: marshal payload: %w", err)
	}
	task := &domain.ResolutionTask{
		ID:              uuid.New(),
		ContactID:       contactID,
		TaskType:        taskType,
		ProposedClaimID: proposedClaimID,
		CurrentClaimID:  currentClaimID,
		Payload:         datatypes.JSON(raw),
		Status:          domain.TaskStatusOpen,
	}
	if err := s.tasks.Create(ctx, nil, task); err != nil {
		return nil, err
	}
	return task, nil
}

// CreateContradictionTask opens a task for a detected claim contradiction.
func (s *Service) CreateContradictionTask(ctx context.Context, contactID string, c domain.Contradiction) (*domain.ResolutionTask, error) {
	payload := map[string]any{
		"current_claim":  c.CurrentClaim,
		"proposed_claim": c.ProposedClaim,
	}
	return s.CreateTask(ctx, contactID, c.TaskType, c.ProposedClaim.ClaimID, c.CurrentClaim.ClaimID, payload)
}

// CreateIdentityTask opens an identity-resolution task for an unknown email.
// At most one open task exists per normalized email; repeats return it.
func (s *Service) CreateIdentityTask(ctx context.Context, email string, extra map[string]any) (*domain.ResolutionTask, bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return nil, false, fmt.Errorf("resolution: email is required for identity tasks")
	}
	existing, err := s.tasks.OpenIdentityTaskByEmail(ctx, nil, normalized)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	payload := map[string]any{
		"email":  normalized,
		"reason": "No contact match found",
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("resolution: marshal payload: %w", err)
	}
	task := &domain.ResolutionTask{
		ID:              uuid.New(),
		TaskType:        domain.TaskTypeIdentityResolution,
		ProposedClaimID: "identity:" + normalized,
		SubjectKey:      normalized,
		Payload:         datatypes.JSON(raw),
		Status:          domain.TaskStatusOpen,
	}
	if err := s.tasks.Create(ctx, nil, task); err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// ListTasks returns tasks in the given status, oldest first.
func (s *Service) ListTasks(ctx context.Context, status string, limit int) ([]*domain.ResolutionTask, error) {
	if status == "" {
		status = domain.TaskStatusOpen
	}
	return s.tasks.ListByStatus(ctx, nil, status, limit)
}

func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*domain.ResolutionTask, error) {
	return s.tasks.GetByID(ctx, nil, id)
}

func employerName(value map[string]any) string {
	for _, key := range []string{"company", "employer", "organization", "org", "target", "destination", "object"} {
		if v, ok := value[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Resolve applies a terminal action to an open task. Accepting an employment
// claim also rewrites the CURRENT_EMPLOYER edge and records an accepted
// works_at relation sourced from the resolution itself.
func (s *Service) Resolve(ctx context.Context, taskID uuid.UUID, action string, editedValue map[string]any) (*domain.ResolutionTask, error) {
	switch action {
	case ActionAcceptProposed, ActionEditAndAccept, ActionRejectProposed:
	default:
		return nil, fmt.Errorf("resolution: unknown action %q: %w", action, errors.ErrInvalidArgument)
	}

	task, err := s.tasks.GetByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusOpen {
		return nil, fmt.Errorf("resolution: task %s is already %s: %w", taskID, task.Status, errors.ErrConflict)
	}

	now := time.Now().UTC()
	accepted := action == ActionAcceptProposed || action == ActionEditAndAccept
	if action != ActionEditAndAccept {
		editedValue = nil
	}

	var proposedBefore, currentBefore *domain.Claim
	if s.neo.Enabled() {
		if task.ProposedClaimID != "" {
			proposedBefore, _ = graph.GetClaimByID(ctx, s.neo, task.ProposedClaimID)
		}
		if task.CurrentClaimID != "" {
			currentBefore, _ = graph.GetClaimByID(ctx, s.neo, task.CurrentClaimID)
		}

		if accepted && task.ProposedClaimID != "" {
			if err := graph.UpdateClaimStatus(ctx, s.neo, task.ProposedClaimID, domain.ClaimStatusAccepted, editedValue, &now); err != nil {
				return nil, err
			}
			if task.CurrentClaimID != "" {
				if err := graph.UpdateClaimStatus(ctx, s.neo, task.CurrentClaimID, domain.ClaimStatusSuperseded, nil, &now); err != nil {
					return nil, err
				}
			}
			s.applyEmployment(ctx, task, proposedBefore, editedValue, now)
		} else if !accepted && task.ProposedClaimID != "" {
			if err := graph.UpdateClaimStatus(ctx, s.neo, task.ProposedClaimID, domain.ClaimStatusRejected, nil, &now); err != nil {
				return nil, err
			}
		}
	}

	if accepted {
		task.Status = domain.TaskStatusResolved
	} else {
		task.Status = domain.TaskStatusDismissed
	}
	task.ResolvedAt = &now

	if err := s.recordResolution(task, action, editedValue, proposedBefore, currentBefore, now); err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, nil, task); err != nil {
		return nil, err
	}
	s.log.Info("resolved task", "task_id", task.ID, "task_type", task.TaskType, "action", action, "status", task.Status)
	return task, nil
}

// applyEmployment reflects an accepted employment claim into the graph:
// the CURRENT_EMPLOYER edge moves and an accepted works_at triple is written.
func (s *Service) applyEmployment(ctx context.Context, task *domain.ResolutionTask, proposed *domain.Claim, editedValue map[string]any, now time.Time) {
	if task.ContactID == "" || proposed == nil || proposed.ClaimType != domain.ClaimTypeEmployment {
		return
	}
	value := proposed.Value
	if len(editedValue) > 0 {
		value = editedValue
	}
	company := employerName(value)
	if company == "" {
		return
	}
	if err := graph.SetCurrentEmployer(ctx, s.neo, task.ContactID, company, task.ProposedClaimID, now); err != nil {
		s.log.Warn("set current employer failed", "task_id", task.ID, "error", err)
		return
	}
	contact := &domain.Contact{ContactID: task.ContactID}
	if s.contacts != nil {
		if row, err := s.contacts.GetByID(ctx, nil, task.ContactID); err == nil && row != nil {
			contact = row
		}
	}
	_, err := graph.UpsertRelation(ctx, s.neo, contact, graph.RelationInput{
		ContactID:   task.ContactID,
		Subject:     "contact",
		Predicate:   "works_at",
		Object:      company,
		ObjectKind:  "Company",
		ClaimID:     task.ProposedClaimID,
		Confidence:  proposed.Confidence,
		Status:      domain.ClaimStatusAccepted,
		HighValue:   true,
		SeenAt:      now,
		EvidenceIDs: []string{"resolution:" + task.ID.String()},
	})
	if err != nil {
		s.log.Warn("write works_at relation failed", "task_id", task.ID, "error", err)
	}
}

// recordResolution appends the audit entry and resolution details to the
// task payload. Existing audit entries are never rewritten.
func (s *Service) recordResolution(task *domain.ResolutionTask, action string, editedValue map[string]any, proposedBefore, currentBefore *domain.Claim, now time.Time) error {
	payload := map[string]any{}
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("resolution: decode payload: %w", err)
		}
	}

	auditLog, _ := payload["audit_log"].([]any)
	auditLog = append(auditLog, AuditEntry{Action: action, EditedValue: editedValue, ResolvedAt: now})
	payload["audit_log"] = auditLog

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("resolution: encode payload: %w", err)
	}
	task.Payload = datatypes.JSON(raw)

	details := map[string]any{
		"action":                action,
		"proposed_claim_status": domain.ClaimStatusRejected,
		"proposed_claim_before": proposedBefore,
		"current_claim_before":  currentBefore,
	}
	if task.Status == domain.TaskStatusResolved {
		details["proposed_claim_status"] = domain.ClaimStatusAccepted
		if task.CurrentClaimID != "" {
			details["current_claim_status"] = domain.ClaimStatusSuperseded
		}
	}
	rawDetails, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("resolution: encode resolution details: %w", err)
	}
	task.Resolution = datatypes.JSON(rawDetails)
	return nil
}
