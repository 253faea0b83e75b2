package repos

import (
	"os"
	"strings"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

// newTestDB returns a Postgres connection when TEST_POSTGRES_DSN is set,
// otherwise an in-memory sqlite database. The vector column on embeddings is
// Postgres-only, so sqlite runs skip that model.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		models := []interface{}{
			&domain.RawEvent{}, &domain.Interaction{}, &domain.Chunk{}, &domain.Embedding{},
			&domain.Contact{}, &domain.Draft{}, &domain.ResolutionTask{}, &domain.ScoreSnapshot{},
		}
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		t.Cleanup(func() {
			for _, m := range models {
				db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m)
			}
		})
		return db
	}
	name := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	models := []interface{}{
		&domain.RawEvent{}, &domain.Interaction{}, &domain.Chunk{},
		&domain.Contact{}, &domain.Draft{}, &domain.ResolutionTask{}, &domain.ScoreSnapshot{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return db
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewNop()
}
