package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/hnmirror/internal/database"
	"github.com/hitoshi/hnmirror/internal/model"
)

// newTestDB はマイグレーション適用済みの一時SQLiteデータベースを開く。
// ファイルはt.TempDir配下に作られ、テスト終了時に破棄される。
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := database.RunMigrations(dbPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func ptrInt64(v int64) *int64 { return &v }

// testItem はテスト用の最小限のアイテムを作る。
func testItem(id int64, owner string, kind model.ItemKind, createdAt time.Time) *model.Item {
	return &model.Item{
		ID:              id,
		OwnerIdentifier: owner,
		Kind:            kind,
		Author:          owner,
		CreatedAt:       createdAt,
		FetchedAt:       createdAt,
	}
}
