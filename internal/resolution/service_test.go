package resolution

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

func newService(t *testing.T) *Service {
	t.Helper()
	name := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.ResolutionTask{}, &domain.Contact{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	log := logger.NewNop()
	svc, err := NewService(log, repos.NewResolutionTaskRepo(db, log), repos.NewContactRepo(db, log), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestIdentityTaskDedupe(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, created, err := svc.CreateIdentityTask(ctx, "  Alex@Example.COM ", nil)
	if err != nil {
		t.Fatalf("CreateIdentityTask: %v", err)
	}
	if !created {
		t.Fatal("first lookup should create a task")
	}
	if first.SubjectKey != "alex@example.com" {
		t.Errorf("subject key = %q", first.SubjectKey)
	}

	second, created, err := svc.CreateIdentityTask(ctx, "alex@example.com", nil)
	if err != nil {
		t.Fatalf("CreateIdentityTask repeat: %v", err)
	}
	if created {
		t.Fatal("repeat lookup should reuse the open task")
	}
	if second.ID != first.ID {
		t.Errorf("expected task %s, got %s", first.ID, second.ID)
	}

	if _, _, err := svc.CreateIdentityTask(ctx, "   ", nil); err == nil {
		t.Fatal("blank email should error")
	}
}

func TestResolveRejectProposed(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	task, err := svc.CreateContradictionTask(ctx, "contact-1", domain.Contradiction{
		TaskType:      domain.TaskTypeEmploymentDiscrepancy,
		CurrentClaim:  domain.Claim{ClaimID: "cur", ClaimType: domain.ClaimTypeEmployment},
		ProposedClaim: domain.Claim{ClaimID: "new", ClaimType: domain.ClaimTypeEmployment},
	})
	if err != nil {
		t.Fatalf("CreateContradictionTask: %v", err)
	}

	resolved, err := svc.Resolve(ctx, task.ID, ActionRejectProposed, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != domain.TaskStatusDismissed {
		t.Errorf("status = %q, want dismissed", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}

	var payload map[string]any
	if err := json.Unmarshal(resolved.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	audit, ok := payload["audit_log"].([]any)
	if !ok || len(audit) != 1 {
		t.Fatalf("audit log = %v", payload["audit_log"])
	}
	entry := audit[0].(map[string]any)
	if entry["action"] != ActionRejectProposed {
		t.Errorf("audit action = %v", entry["action"])
	}

	var details map[string]any
	if err := json.Unmarshal(resolved.Resolution, &details); err != nil {
		t.Fatalf("decode resolution: %v", err)
	}
	if details["proposed_claim_status"] != domain.ClaimStatusRejected {
		t.Errorf("proposed status = %v", details["proposed_claim_status"])
	}
}

func TestResolveAcceptProposed(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "contact-1", domain.TaskTypePreferenceConflict, "new", "cur", map[string]any{"note": "review"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	edited := map[string]any{"object": "afternoon meetings"}
	resolved, err := svc.Resolve(ctx, task.ID, ActionEditAndAccept, edited)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != domain.TaskStatusResolved {
		t.Errorf("status = %q, want resolved", resolved.Status)
	}

	var payload map[string]any
	if err := json.Unmarshal(resolved.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["note"] != "review" {
		t.Errorf("original payload keys must survive: %v", payload)
	}
	audit := payload["audit_log"].([]any)
	entry := audit[0].(map[string]any)
	if entry["edited_value"].(map[string]any)["object"] != "afternoon meetings" {
		t.Errorf("edited value missing from audit: %v", entry)
	}

	var details map[string]any
	if err := json.Unmarshal(resolved.Resolution, &details); err != nil {
		t.Fatalf("decode resolution: %v", err)
	}
	if details["proposed_claim_status"] != domain.ClaimStatusAccepted {
		t.Errorf("proposed status = %v", details["proposed_claim_status"])
	}
	if details["current_claim_status"] != domain.ClaimStatusSuperseded {
		t.Errorf("current status = %v", details["current_claim_status"])
	}

	// Terminal tasks cannot be resolved twice.
	if _, err := svc.Resolve(ctx, task.ID, ActionAcceptProposed, nil); err == nil {
		t.Fatal("expected error on double resolve")
	}
}

func TestResolveUnknownAction(t *testing.T) {
	svc := newService(t)
	task, err := svc.CreateTask(context.Background(), "c", domain.TaskTypePreferenceConflict, "p", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), task.ID, "explode", nil); err == nil {
		t.Fatal("expected error for unknown action")
	}
}
