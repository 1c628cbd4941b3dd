package repository

import (
	"context"
	"testing"
	"time"
)

func TestThreadViewRepo_UpsertAndFind(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteThreadViewRepo(db)
	ctx := context.Background()

	seenAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	view, err := repo.Upsert(ctx, "alice", 100, seenAt)
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if view.OwnerIdentifier != "alice" || view.ThreadRootID != 100 {
		t.Errorf("view = %+v, want alice/100", view)
	}
	if !view.LastSeenAt.Equal(seenAt) {
		t.Errorf("LastSeenAt = %v, want %v", view.LastSeenAt, seenAt)
	}

	found, err := repo.FindByOwnerAndRoot(ctx, "alice", 100)
	if err != nil {
		t.Fatalf("FindByOwnerAndRoot returned error: %v", err)
	}
	if found == nil || found.ID != view.ID {
		t.Error("FindByOwnerAndRoot should return the upserted row")
	}
}

func TestThreadViewRepo_UpsertKeepsSingleRowPerThread(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteThreadViewRepo(db)
	ctx := context.Background()

	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	later := first.Add(2 * time.Hour)

	initial, err := repo.Upsert(ctx, "alice", 100, first)
	if err != nil {
		t.Fatalf("first Upsert returned error: %v", err)
	}
	updated, err := repo.Upsert(ctx, "alice", 100, later)
	if err != nil {
		t.Fatalf("second Upsert returned error: %v", err)
	}

	if initial.ID != updated.ID {
		t.Errorf("repeated Upsert should keep the same row: %q != %q", initial.ID, updated.ID)
	}
	if !updated.LastSeenAt.Equal(later) {
		t.Errorf("LastSeenAt = %v, want %v", updated.LastSeenAt, later)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM thread_views`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestThreadViewRepo_FindReturnsNilWhenAbsent(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteThreadViewRepo(db)

	view, err := repo.FindByOwnerAndRoot(context.Background(), "alice", 999)
	if err != nil {
		t.Fatalf("FindByOwnerAndRoot returned error: %v", err)
	}
	if view != nil {
		t.Errorf("view = %+v, want nil", view)
	}
}
