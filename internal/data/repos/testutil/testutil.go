package testutil

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/kierachat-backend/internal/data/db"
	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

var (
	pgOnce sync.Once
	pgDB   *gorm.DB
	pgErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a migrated database. With TEST_POSTGRES_DSN set the shared
// Postgres database is used; otherwise every call gets a fresh in-memory
// SQLite database limited to one connection.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		pgOnce.Do(func() {
			pgDB, pgErr = gorm.Open(postgres.Open(dsn), &gorm.Config{
				DisableForeignKeyConstraintWhenMigrating: true,
				Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
			})
			if pgErr == nil {
				pgErr = db.AutoMigrateAll(pgDB)
			}
		})
		if pgErr != nil {
			tb.Fatalf("failed to init test db: %v", pgErr)
		}
		return pgDB
	}

	name := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	mem, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := mem.DB()
	if err != nil {
		tb.Fatalf("sqlite pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrateAll(mem); err != nil {
		tb.Fatalf("automigrate: %v", err)
	}
	return mem
}

func SeedUserSession(tb testing.TB, tx *gorm.DB, userID uuid.UUID) *types.ChatSession {
	tb.Helper()
	uid := userID
	s := &types.ChatSession{ID: uuid.New(), UserID: &uid, Title: "Seeded"}
	if err := tx.Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

func SeedAnonymousSession(tb testing.TB, tx *gorm.DB, anonymousID string) *types.ChatSession {
	tb.Helper()
	tok := anonymousID
	s := &types.ChatSession{ID: uuid.New(), AnonymousToken: &tok, Title: "Seeded"}
	if err := tx.Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

// SeedMessages appends messages with consecutive seqs and advances the session cursor.
func SeedMessages(tb testing.TB, tx *gorm.DB, s *types.ChatSession, roles ...string) []*types.ChatMessage {
	tb.Helper()
	out := make([]*types.ChatMessage, 0, len(roles))
	now := time.Now().UTC()
	for i, role := range roles {
		s.NextSeq++
		m := &types.ChatMessage{
			ID:             uuid.New(),
			SessionID:      s.ID,
			Seq:            s.NextSeq,
			Role:           role,
			Content:        fmt.Sprintf("%s-%d", role, i),
			UserID:         s.UserID,
			AnonymousToken: s.AnonymousToken,
			// identical timestamps on purpose: ordering must come from seq
			Timestamp: now,
		}
		if err := tx.Create(m).Error; err != nil {
			tb.Fatalf("seed message: %v", err)
		}
		out = append(out, m)
	}
	if err := tx.Model(&types.ChatSession{}).Where("id = ?", s.ID).Update("next_seq", s.NextSeq).Error; err != nil {
		tb.Fatalf("seed next_seq: %v", err)
	}
	return out
}
