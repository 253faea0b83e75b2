package contacts

import (
	"context"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

func TestInternalIdentity(t *testing.T) {
	id := NewInternalIdentity("luxcrm.ai, corp.example", "ceo@gmail.com")
	cases := map[string]bool{
		"dana@luxcrm.ai":    true,
		"Dana@LUXCRM.AI":    true,
		"lee@corp.example":  true,
		"ceo@gmail.com":     true,
		"dana@customer.com": false,
		"not-an-email":      false,
		"":                  false,
	}
	for email, want := range cases {
		if got := id.IsInternalEmail(email); got != want {
			t.Errorf("IsInternalEmail(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestParseValuesGrid(t *testing.T) {
	rows := ParseValuesGrid([][]string{
		{"Contact ID", "Email", "First Name", "Last Name", "Company", "Use Sensitive In Drafts"},
		{"c1", "Dana@Example.com", "Dana", "Reyes", "Initech", "yes"},
		{"", "", "", "", "", ""},
		{"c2", "lee@example.com", "Lee", "", "", ""},
		{"", "missing-id@example.com", "x", "", "", ""},
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].PrimaryEmail != "dana@example.com" {
		t.Errorf("email not lowercased: %q", rows[0].PrimaryEmail)
	}
	if rows[0].DisplayName != "Dana Reyes" {
		t.Errorf("display name = %q", rows[0].DisplayName)
	}
	if !rows[0].UseSensitiveInDrafts {
		t.Error("truthy flag not parsed")
	}
	if rows[1].DisplayName != "Lee" {
		t.Errorf("single-name display = %q", rows[1].DisplayName)
	}
}

func TestDedupeRowsKeepsBestCompanyMatch(t *testing.T) {
	rows, dropped := dedupeRows([]ContactRow{
		{ContactID: "a", PrimaryEmail: "dana@example.com", DisplayName: "Dana"},
		{ContactID: "b", PrimaryEmail: "Dana@Example.com", DisplayName: "Dana Reyes", Company: "Initech"},
		{ContactID: "c", PrimaryEmail: "lee@example.com", Company: "Globex"},
	})
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].ContactID != "b" {
		t.Errorf("company-bearing row should win: %+v", rows[0])
	}
}

func newSyncService(t *testing.T, source RowSource) (*Service, repos.ContactRepo) {
	t.Helper()
	name := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Contact{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	log := logger.NewNop()
	contactsRepo := repos.NewContactRepo(db, log)
	svc, err := NewService(log, contactsRepo, source, NewInternalIdentity("luxcrm.ai", ""), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, contactsRepo
}

func TestSyncPushUpsertsAndPurges(t *testing.T) {
	svc, contactsRepo := newSyncService(t, nil)
	ctx := context.Background()

	// Pre-seed an internal row that should be purged.
	if err := contactsRepo.Upsert(ctx, nil, &domain.Contact{ContactID: "old", PrimaryEmail: "ops@luxcrm.ai"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	result, err := svc.Sync(ctx, ModePush, []ContactRow{
		{ContactID: "c1", PrimaryEmail: "dana@example.com", DisplayName: "Dana", Company: "Initech"},
		{ContactID: "c1-dupe", PrimaryEmail: "DANA@example.com", DisplayName: "D"},
		{ContactID: "c2", PrimaryEmail: "me@luxcrm.ai", DisplayName: "Me"},
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Upserted != 1 {
		t.Errorf("upserted = %d, want 1", result.Upserted)
	}
	if result.Deduped != 1 {
		t.Errorf("deduped = %d, want 1", result.Deduped)
	}
	if result.Purged < 1 {
		t.Errorf("purged = %d, want >= 1", result.Purged)
	}

	got, err := contactsRepo.GetByEmail(ctx, nil, "dana@example.com")
	if err != nil || got == nil {
		t.Fatalf("lookup after sync: %v %v", got, err)
	}
	if got.ContactID != "c1" || got.Company != "Initech" {
		t.Errorf("wrong surviving row: %+v", got)
	}
	if internal, _ := contactsRepo.GetByEmail(ctx, nil, "ops@luxcrm.ai"); internal != nil {
		t.Errorf("internal contact should be purged: %+v", internal)
	}
}

func TestSyncPullUsesRowSource(t *testing.T) {
	source := StaticRowSource{
		{ContactID: "c9", PrimaryEmail: "pat@example.com", DisplayName: "Pat"},
	}
	svc, contactsRepo := newSyncService(t, source)

	result, err := svc.Sync(context.Background(), ModePull, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Upserted != 1 {
		t.Errorf("upserted = %d, want 1", result.Upserted)
	}
	if got, _ := contactsRepo.GetByEmail(context.Background(), nil, "pat@example.com"); got == nil {
		t.Error("pulled row not persisted")
	}

	noSource, _ := newSyncService(t, nil)
	if _, err := noSource.Sync(context.Background(), ModePull, nil); err == nil {
		t.Error("pull without source should error")
	}
}

func TestSyncUnknownMode(t *testing.T) {
	svc, _ := newSyncService(t, nil)
	if _, err := svc.Sync(context.Background(), "sideways", nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
