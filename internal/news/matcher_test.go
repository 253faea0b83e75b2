package news

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
	"github.com/luxcrm/relay/internal/evidence"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

func TestSummarize(t *testing.T) {
	got := Summarize("Initech raises Series C", strings.Repeat("a", 400))
	if !strings.HasPrefix(got, "Initech raises Series C: ") {
		t.Errorf("summary prefix wrong: %q", got)
	}
	if len(got) > len("Initech raises Series C: ")+300 {
		t.Errorf("preview not truncated: %d chars", len(got))
	}
}

func TestDedupeKey(t *testing.T) {
	if got := DedupeKey(" https://example.com/A ", "Title"); got != "https://example.com/a" {
		t.Errorf("url key = %q", got)
	}
	if got := DedupeKey("", "  Initech   Raises "); got != "initech raises" {
		t.Errorf("title key = %q", got)
	}
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("Initech announced that their new Kubernetes platform would ship during 2026", 12)
	for _, kw := range got {
		if _, stop := keywordStopwords[kw]; stop {
			t.Errorf("stopword %q survived", kw)
		}
	}
	if got[0] != "initech" {
		t.Errorf("keywords must keep document order, got %v", got)
	}
	capped := ExtractKeywords(strings.Repeat("alpha beta gamma delta epsilon zeta eta theta iota kappa lambda munote nunote ", 3), 5)
	if len(capped) != 5 {
		t.Errorf("cap = %d, want 5", len(capped))
	}
}

func newMatcher(t *testing.T) (*Matcher, repos.ContactRepo, repos.InteractionRepo) {
	t.Helper()
	name := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Contact{}, &domain.Interaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	log := logger.NewNop()
	contacts := repos.NewContactRepo(db, log)
	interactions := repos.NewInteractionRepo(db, log)
	embedder := evidence.NewEmbedder(nil, log)
	m, err := NewMatcher(log, contacts, interactions, embedder, nil)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	return m, contacts, interactions
}

func TestMatchContactsRanksCompanyOverlap(t *testing.T) {
	m, contacts, interactions := newMatcher(t)
	ctx := context.Background()

	for _, c := range []*domain.Contact{
		{ContactID: "c1", PrimaryEmail: "dana@initech.com", DisplayName: "Dana Reyes", Company: "Initech"},
		{ContactID: "c2", PrimaryEmail: "lee@globex.com", DisplayName: "Lee Park", Company: "Globex"},
	} {
		if err := contacts.Upsert(ctx, nil, c); err != nil {
			t.Fatalf("upsert contact: %v", err)
		}
	}

	ids, _ := json.Marshal([]string{"c1"})
	row := &domain.Interaction{
		ID:           uuid.New(),
		SourceSystem: "gmail",
		ExternalID:   "m1",
		Type:         domain.InteractionTypeEmail,
		Timestamp:    time.Now().UTC().Add(-24 * time.Hour),
		Direction:    domain.DirectionIn,
		Subject:      "Initech platform migration",
		ThreadID:     "t1",
		ContactIDs:   ids,
		Status:       domain.InteractionStatusProcessed,
	}
	if _, _, err := interactions.GetOrCreate(ctx, nil, row); err != nil {
		t.Fatalf("create interaction: %v", err)
	}

	got, err := m.MatchContacts(ctx, "Initech announces a major platform expansion", 10)
	if err != nil {
		t.Fatalf("MatchContacts: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one match")
	}
	if got[0].ContactID != "c1" {
		t.Errorf("top match = %s, want c1", got[0].ContactID)
	}
	if got[0].CompanySignal == 0 {
		t.Errorf("company overlap should register: %+v", got[0])
	}
	found := false
	for _, kw := range got[0].MatchedKeywords {
		if kw == "initech" {
			found = true
		}
	}
	if !found {
		t.Errorf("matched keywords missing 'initech': %v", got[0].MatchedKeywords)
	}
	for i := 1; i < len(got); i++ {
		if got[i].MatchScore > got[i-1].MatchScore {
			t.Errorf("results not sorted: %v", got)
		}
	}
}

func TestMatchContactsEmptyRegistry(t *testing.T) {
	m, _, _ := newMatcher(t)
	got, err := m.MatchContacts(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("MatchContacts: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for empty registry, got %v", got)
	}
}
