package processor

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
	"github.com/luxcrm/relay/internal/extraction"
	"github.com/luxcrm/relay/internal/memory"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/resolution"
	"github.com/luxcrm/relay/internal/scoring"
	"github.com/luxcrm/relay/internal/summarycache"
)

type fixture struct {
	svc       *Service
	contacts  repos.ContactRepo
	rows      repos.InteractionRepo
	rawEvents repos.RawEventRepo
	chunks    repos.ChunkRepo
	drafts    repos.DraftRepo
	tasks     repos.ResolutionTaskRepo
	snapshots repos.ScoreSnapshotRepo
	summaries *summarycache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Contact{},
		&domain.Interaction{},
		&domain.RawEvent{},
		&domain.Chunk{},
		&domain.ResolutionTask{},
		&domain.ScoreSnapshot{},
		&domain.Draft{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	log := logger.NewNop()
	f := &fixture{
		contacts:  repos.NewContactRepo(db, log),
		rows:      repos.NewInteractionRepo(db, log),
		rawEvents: repos.NewRawEventRepo(db, log),
		chunks:    repos.NewChunkRepo(db, log),
		drafts:    repos.NewDraftRepo(db, log),
		tasks:     repos.NewResolutionTaskRepo(db, log),
		snapshots: repos.NewScoreSnapshotRepo(db, log),
	}

	extractor, err := extraction.NewService(log, extraction.BackendHeuristic, "", 0, true)
	if err != nil {
		t.Fatalf("extraction.NewService: %v", err)
	}
	proposer, err := memory.NewService(log, memory.BackendRules, "", 0, true)
	if err != nil {
		t.Fatalf("memory.NewService: %v", err)
	}
	resolutionSvc, err := resolution.NewService(log, f.tasks, f.contacts, nil)
	if err != nil {
		t.Fatalf("resolution.NewService: %v", err)
	}
	scoringSvc, err := scoring.NewService(log, f.rows, f.snapshots, nil, nil, nil)
	if err != nil {
		t.Fatalf("scoring.NewService: %v", err)
	}
	f.summaries, err = summarycache.New(log, nil, f.rows, f.chunks, time.Minute, true)
	if err != nil {
		t.Fatalf("summarycache.New: %v", err)
	}

	f.svc, err = NewService(log, f.contacts, f.rows, f.rawEvents, f.chunks,
		nil, extractor, proposer, resolutionSvc, scoringSvc, nil, f.summaries, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return f
}

func (f *fixture) seedContact(t *testing.T, contactID, email string) {
	t.Helper()
	err := f.contacts.Upsert(context.Background(), nil, &domain.Contact{
		ContactID:    contactID,
		PrimaryEmail: email,
		DisplayName:  "Contact " + contactID,
	})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
}

func (f *fixture) seedEvent(t *testing.T, sourceSystem, externalID, body string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{"body_plain": body})
	_, _, err := f.rawEvents.GetOrCreate(context.Background(), nil, &domain.RawEvent{
		ID:           uuid.New(),
		SourceSystem: sourceSystem,
		EventType:    "email_received",
		ExternalID:   externalID,
		Payload:      payload,
		ReceivedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed raw event: %v", err)
	}
}

func (f *fixture) seedInteraction(t *testing.T, interactionType, externalID string, participants domain.ParticipantSet) uuid.UUID {
	t.Helper()
	raw, _ := json.Marshal(participants)
	row := &domain.Interaction{
		ID:           uuid.New(),
		SourceSystem: "gmail",
		ExternalID:   externalID,
		Type:         interactionType,
		Timestamp:    time.Now().UTC().Add(-2 * time.Hour),
		Direction:    domain.DirectionIn,
		Subject:      "Pilot kickoff",
		ThreadID:     "thread-1",
		Participants: raw,
		Status:       domain.InteractionStatusNew,
	}
	if _, _, err := f.rows.GetOrCreate(context.Background(), nil, row); err != nil {
		t.Fatalf("seed interaction: %v", err)
	}
	return row.ID
}

func TestProcessInteractionResolvesContactsAndAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedContact(t, "c1", "alice@acme.com")
	f.seedEvent(t, "gmail", "msg-1", "Alice works at Acme. Budget approved for the pilot, deadline next week.")
	id := f.seedInteraction(t, domain.InteractionTypeEmail, "msg-1", domain.ParticipantSet{
		From: []domain.Participant{{Email: "Alice@acme.com", Name: "Alice"}},
		To:   []domain.Participant{{Email: "bob@unknown.io"}},
	})

	if err := f.svc.ProcessInteraction(ctx, id); err != nil {
		t.Fatalf("ProcessInteraction: %v", err)
	}

	row, err := f.rows.GetByID(ctx, nil, id)
	if err != nil || row == nil {
		t.Fatalf("reload interaction: %v", err)
	}
	if row.Status != domain.InteractionStatusProcessed {
		t.Errorf("status = %q, want processed", row.Status)
	}
	if row.ProcessingError != "" {
		t.Errorf("processing_error = %q, want empty", row.ProcessingError)
	}
	ids := repos.ContactIDsOf(row)
	if len(ids) != 1 || ids[0] != "c1" {
		t.Errorf("contact_ids = %v, want [c1]", ids)
	}

	tasks, err := f.tasks.ListByStatus(ctx, nil, domain.TaskStatusOpen, 10)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	var identity int
	for _, task := range tasks {
		if task.TaskType == domain.TaskTypeIdentityResolution {
			identity++
			if task.SubjectKey != "bob@unknown.io" {
				t.Errorf("identity task subject = %q", task.SubjectKey)
			}
		}
	}
	if identity != 1 {
		t.Errorf("identity tasks = %d, want 1", identity)
	}

	snap, err := f.snapshots.GetLatestByContact(ctx, nil, "c1")
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap == nil || snap.RelationshipScore <= 0 {
		t.Errorf("snapshot = %+v, want positive relationship score", snap)
	}

	if _, ok := f.summaries.Get("c1"); !ok {
		t.Error("summary cache not refreshed for c1")
	}
}

func TestProcessInteractionReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedContact(t, "c1", "alice@acme.com")
	f.seedEvent(t, "gmail", "msg-1", "Quick sync about renewal pricing.")
	id := f.seedInteraction(t, domain.InteractionTypeEmail, "msg-1", domain.ParticipantSet{
		From: []domain.Participant{{Email: "alice@acme.com"}},
		To:   []domain.Participant{{Email: "bob@unknown.io"}},
	})

	if err := f.svc.ProcessInteraction(ctx, id); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := f.svc.ProcessInteraction(ctx, id); err != nil {
		t.Fatalf("second run: %v", err)
	}

	tasks, err := f.tasks.ListByStatus(ctx, nil, domain.TaskStatusOpen, 50)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	var identity int
	for _, task := range tasks {
		if task.TaskType == domain.TaskTypeIdentityResolution {
			identity++
		}
	}
	if identity != 1 {
		t.Errorf("identity tasks after replay = %d, want 1", identity)
	}
}

func TestProcessInteractionMissingRowIsDropped(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.ProcessInteraction(context.Background(), uuid.New()); err != nil {
		t.Fatalf("missing interaction should not error, got %v", err)
	}
}

func TestProcessInteractionRoutesNewsType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, "news", "https://example.com/acme-funding", "Acme raises a new round.")
	id := f.seedInteraction(t, domain.InteractionTypeNews, "https://example.com/acme-funding", domain.ParticipantSet{})

	if err := f.svc.ProcessInteraction(ctx, id); err != nil {
		t.Fatalf("ProcessInteraction: %v", err)
	}
	row, err := f.rows.GetByID(ctx, nil, id)
	if err != nil || row == nil {
		t.Fatalf("reload interaction: %v", err)
	}
	if row.Status != domain.InteractionStatusProcessed {
		t.Errorf("status = %q, want processed", row.Status)
	}
	if len(repos.ContactIDsOf(row)) != 0 {
		t.Errorf("news interaction should not resolve contacts, got %v", repos.ContactIDsOf(row))
	}
}

func TestProcessNewsReusesExistingChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedInteraction(t, domain.InteractionTypeNews, "n-1", domain.ParticipantSet{})
	span, _ := json.Marshal(map[string]any{"start": 0, "end": 12})
	if _, err := f.chunks.Create(ctx, nil, []*domain.Chunk{{
		ID:            uuid.New(),
		InteractionID: id,
		ChunkType:     "news_paragraph",
		Text:          "Acme raises.",
		Span:          span,
	}}); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}

	if err := f.svc.ProcessNews(ctx, id); err != nil {
		t.Fatalf("ProcessNews: %v", err)
	}
	rows, err := f.chunks.ListByInteraction(ctx, nil, id)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("chunks = %d, want the seeded row to be reused", len(rows))
	}
}

func TestRecomputeScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedContact(t, "c1", "alice@acme.com")
	f.seedContact(t, "c2", "carol@globex.com")

	written, err := f.svc.RecomputeScores(ctx)
	if err != nil {
		t.Fatalf("RecomputeScores: %v", err)
	}
	if written != 2 {
		t.Errorf("written = %d, want 2", written)
	}
	for _, id := range []string{"c1", "c2"} {
		snap, err := f.snapshots.GetLatestByContact(ctx, nil, id)
		if err != nil || snap == nil {
			t.Errorf("snapshot missing for %s: %v", id, err)
		}
	}
}

func TestCleanupRespectsRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := time.Now().UTC().AddDate(-2, 0, 0)

	payload, _ := json.Marshal(map[string]any{"body_plain": "stale"})
	if _, _, err := f.rawEvents.GetOrCreate(ctx, nil, &domain.RawEvent{
		ID: uuid.New(), SourceSystem: "gmail", EventType: "email_received",
		ExternalID: "stale-1", Payload: payload, ReceivedAt: old,
	}); err != nil {
		t.Fatalf("seed raw event: %v", err)
	}
	span, _ := json.Marshal(map[string]any{})
	if _, err := f.chunks.Create(ctx, nil, []*domain.Chunk{{
		ID: uuid.New(), InteractionID: uuid.New(), ChunkType: "email_body",
		Text: "stale", Span: span, CreatedAt: old,
	}}); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
	prompt, _ := json.Marshal(map[string]any{})
	for _, d := range []*domain.Draft{
		{ID: uuid.New(), ContactID: "c1", CreatedAt: old, Prompt: prompt, DraftText: "old", Status: domain.DraftStatusApproved},
		{ID: uuid.New(), ContactID: "c1", CreatedAt: old, Prompt: prompt, DraftText: "keep", Status: domain.DraftStatusProposed},
	} {
		if err := f.drafts.Create(ctx, nil, d); err != nil {
			t.Fatalf("seed draft: %v", err)
		}
	}

	result, err := f.svc.Cleanup(ctx, f.drafts)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !result.Enabled {
		t.Fatal("cleanup should be enabled by default")
	}
	if result.RawEventsDeleted != 1 || result.ChunksDeleted != 1 || result.DraftsDeleted != 1 {
		t.Errorf("deleted = %+v, want 1/1/1", result)
	}
	remaining, err := f.drafts.ListByStatuses(ctx, nil, []string{domain.DraftStatusProposed}, 10)
	if err != nil {
		t.Fatalf("list drafts: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("proposed drafts remaining = %d, want 1", len(remaining))
	}
}

func TestClaimsFromOps(t *testing.T) {
	defaults := []domain.EvidenceRef{{InteractionID: "i-1", ChunkID: "ch-1"}}
	ops := []domain.MemoryOp{
		{Op: domain.MemoryOpAdd, Claim: domain.Claim{ClaimID: "cl-1", ClaimType: "employment", Status: domain.ClaimStatusAccepted}},
		{Op: domain.MemoryOpReject, Claim: domain.Claim{ClaimID: "cl-2", ClaimType: "topic", Status: domain.ClaimStatusProposed}},
		{Op: "NOOP", Claim: domain.Claim{ClaimID: "cl-3"}},
		{Op: domain.MemoryOpAdd},
	}

	claims := claimsFromOps(ops, defaults)
	if len(claims) != 2 {
		t.Fatalf("claims = %d, want 2", len(claims))
	}
	if claims[0].ClaimID != "cl-1" || len(claims[0].EvidenceRefs) != 1 || claims[0].EvidenceRefs[0].ChunkID != "ch-1" {
		t.Errorf("first claim missing default evidence: %+v", claims[0])
	}
	if claims[1].Status != domain.ClaimStatusRejected {
		t.Errorf("reject op status = %q, want rejected", claims[1].Status)
	}
}

func TestDefaultEvidenceRefsCapped(t *testing.T) {
	span, _ := json.Marshal(map[string]any{"start": 0})
	var chunkRows []*domain.Chunk
	for i := 0; i < 5; i++ {
		chunkRows = append(chunkRows, &domain.Chunk{ID: uuid.New(), Text: "body", Span: span})
	}
	refs := defaultEvidenceRefs("i-1", chunkRows)
	if len(refs) != 3 {
		t.Fatalf("refs = %d, want 3", len(refs))
	}
	for _, ref := range refs {
		if ref.InteractionID != "i-1" || ref.ChunkID == "" || ref.Span == nil {
			t.Errorf("ref incomplete: %+v", ref)
		}
	}
}
