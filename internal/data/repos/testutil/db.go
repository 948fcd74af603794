// Package testutil opens throwaway sqlite databases for repository and service tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/neurobridge-tutor/internal/data/db"
	tutor "github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// DB returns a migrated sqlite database under t.TempDir. A single connection
// keeps sqlite from returning SQLITE_BUSY when tests write concurrently.
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tutor.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=off", path)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrateAll(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

// Logger is a no-op logger for tests.
func Logger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func Ctx() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

// OutlineSpec describes one topic to seed: its kind and sub-topic count.
type OutlineSpec struct {
	Kind      tutor.TopicKind
	SubTopics int
}

// SeedOutline writes an outline for fileID and returns the topics in order.
func SeedOutline(t *testing.T, gdb *gorm.DB, ownerID, fileID uuid.UUID, specs ...OutlineSpec) []*tutor.Topic {
	t.Helper()
	now := time.Now().UTC()
	topics := make([]*tutor.Topic, 0, len(specs))
	for i, s := range specs {
		tp := &tutor.Topic{
			ID:          uuid.New(),
			FileID:      fileID,
			OwnerUserID: ownerID,
			Index:       i,
			Title:       fmt.Sprintf("Topic %d", i+1),
			Kind:        s.Kind,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for j := 0; j < s.SubTopics; j++ {
			tp.SubTopics = append(tp.SubTopics, &tutor.SubTopic{
				ID:        uuid.New(),
				TopicID:   tp.ID,
				Index:     j,
				Title:     fmt.Sprintf("Sub %d.%d", i+1, j+1),
				Summary:   fmt.Sprintf("summary of sub %d.%d", i+1, j+1),
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		topics = append(topics, tp)
	}
	if err := gdb.Create(&topics).Error; err != nil {
		t.Fatalf("seed outline: %v", err)
	}
	return topics
}
