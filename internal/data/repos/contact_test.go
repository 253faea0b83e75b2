package repos

import (
	"context"
	"testing"

	"github.com/luxcrm/relay/internal/domain"
)

func TestContactUpsertReplacesFields(t *testing.T) {
	db := newTestDB(t)
	repo := NewContactRepo(db, testLogger(t))
	ctx := context.Background()

	row := &domain.Contact{
		ContactID:    "c_1",
		PrimaryEmail: "Ana@Acme.com",
		DisplayName:  "Ana Ruiz",
		Company:      "Acme",
	}
	if err := repo.Upsert(ctx, nil, row); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.GetByEmail(ctx, nil, "ana@acme.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ContactID != "c_1" {
		t.Fatalf("lookup by normalized email failed: %+v", got)
	}

	row.Company = "Acme Robotics"
	row.UseSensitiveInDrafts = true
	if err := repo.Upsert(ctx, nil, row); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = repo.GetByID(ctx, nil, "c_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Company != "Acme Robotics" || !got.UseSensitiveInDrafts {
		t.Fatalf("upsert did not replace fields: %+v", got)
	}

	all, err := repo.ListAll(ctx, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("upsert created duplicate rows: %d", len(all))
	}
}

func TestContactDeleteByEmails(t *testing.T) {
	db := newTestDB(t)
	repo := NewContactRepo(db, testLogger(t))
	ctx := context.Background()

	for _, c := range []*domain.Contact{
		{ContactID: "c_1", PrimaryEmail: "a@x.com"},
		{ContactID: "c_2", PrimaryEmail: "b@x.com"},
		{ContactID: "c_3", PrimaryEmail: "c@y.com"},
	} {
		if err := repo.Upsert(ctx, nil, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := repo.DeleteByEmails(ctx, nil, []string{"a@x.com", "b@x.com"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d rows", n)
	}
	remaining, err := repo.ListAll(ctx, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ContactID != "c_3" {
		t.Fatalf("remaining = %+v", remaining)
	}
}
