package summarycache

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

func newCache(t *testing.T, enabled bool) (*Cache, repos.InteractionRepo) {
	t.Helper()
	name := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Interaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	log := logger.NewNop()
	interactions := repos.NewInteractionRepo(db, log)
	cache, err := New(log, nil, interactions, nil, time.Minute, enabled)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cache, interactions
}

func seedInteraction(t *testing.T, interactions repos.InteractionRepo, contactID, subject string, age time.Duration) {
	t.Helper()
	contactIDs, _ := json.Marshal([]string{contactID})
	participants, _ := json.Marshal(map[string]any{})
	row := &domain.Interaction{
		ID:           uuid.New(),
		SourceSystem: "gmail",
		ExternalID:   uuid.NewString(),
		Type:         "email",
		Timestamp:    time.Now().UTC().Add(-age),
		Direction:    "in",
		Subject:      subject,
		Participants: participants,
		ContactIDs:   contactIDs,
		Status:       "processed",
	}
	if _, _, err := interactions.GetOrCreate(context.Background(), nil, row); err != nil {
		t.Fatalf("seed interaction: %v", err)
	}
}

func TestRefreshBuildsHeuristicSummary(t *testing.T) {
	cache, interactions := newCache(t, true)
	seedInteraction(t, interactions, "c1", "Pilot kickoff", 24*time.Hour)
	seedInteraction(t, interactions, "c1", "Pilot kickoff", 48*time.Hour)
	seedInteraction(t, interactions, "c1", "Renewal pricing", 72*time.Hour)
	seedInteraction(t, interactions, "c2", "Unrelated", 24*time.Hour)

	summary, err := cache.Refresh(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if summary.Source != "heuristic" {
		t.Errorf("source = %q", summary.Source)
	}
	if !strings.Contains(summary.Summary, "Pilot kickoff") || !strings.Contains(summary.Summary, "Renewal pricing") {
		t.Errorf("summary = %q", summary.Summary)
	}
	if strings.Contains(summary.Summary, "Unrelated") {
		t.Error("other contact's subject leaked into summary")
	}
	if len(summary.RecentTopics) != 2 {
		t.Errorf("topics = %v, want deduped 2", summary.RecentTopics)
	}
	if !strings.HasPrefix(summary.PriorityNextStep, "Stub:") {
		t.Errorf("next step = %q", summary.PriorityNextStep)
	}

	cached, ok := cache.Get("c1")
	if !ok || cached.Summary != summary.Summary {
		t.Error("refresh should populate the cache")
	}
}

func TestRefreshWithNoInteractions(t *testing.T) {
	cache, _ := newCache(t, true)
	summary, err := cache.Refresh(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if summary.Summary != "No recent interactions on record." {
		t.Errorf("summary = %q", summary.Summary)
	}
}

func TestGetBypassesWhenDisabled(t *testing.T) {
	cache, interactions := newCache(t, false)
	seedInteraction(t, interactions, "c1", "Hello", 24*time.Hour)

	if _, err := cache.Refresh(context.Background(), "c1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, ok := cache.Get("c1"); ok {
		t.Error("disabled cache should never serve reads")
	}
}

func TestInvalidateDropsEntry(t *testing.T) {
	cache, interactions := newCache(t, true)
	seedInteraction(t, interactions, "c1", "Hello", 24*time.Hour)

	if _, err := cache.Refresh(context.Background(), "c1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	cache.Invalidate("c1")
	if _, ok := cache.Get("c1"); ok {
		t.Error("entry should be gone after invalidation")
	}
}
