package coord

import (
	"context"
	"testing"
	"time"
)

func TestMemory_LockMutualExclusion(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx := context.Background()

	acquired, err := m.TryAcquireLock(ctx)
	if err != nil {
		t.Fatalf("TryAcquireLock returned error: %v", err)
	}
	if !acquired {
		t.Fatal("first acquisition should succeed")
	}

	acquired, err = m.TryAcquireLock(ctx)
	if err != nil {
		t.Fatalf("TryAcquireLock returned error: %v", err)
	}
	if acquired {
		t.Error("second acquisition should be denied while lock is held")
	}

	if err := m.ReleaseLock(ctx); err != nil {
		t.Fatalf("ReleaseLock returned error: %v", err)
	}

	acquired, err = m.TryAcquireLock(ctx)
	if err != nil {
		t.Fatalf("TryAcquireLock returned error: %v", err)
	}
	if !acquired {
		t.Error("acquisition after release should succeed")
	}
}

func TestMemory_ExpiredLockIsAcquirable(t *testing.T) {
	m := NewMemory(10 * time.Millisecond)
	ctx := context.Background()

	if acquired, _ := m.TryAcquireLock(ctx); !acquired {
		t.Fatal("first acquisition should succeed")
	}

	time.Sleep(20 * time.Millisecond)

	acquired, err := m.TryAcquireLock(ctx)
	if err != nil {
		t.Fatalf("TryAcquireLock returned error: %v", err)
	}
	if !acquired {
		t.Error("expired lock should be acquirable")
	}
}

func TestMemory_ForceReleaseLock(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx := context.Background()

	if acquired, _ := m.TryAcquireLock(ctx); !acquired {
		t.Fatal("first acquisition should succeed")
	}

	if err := m.ForceReleaseLock(ctx); err != nil {
		t.Fatalf("ForceReleaseLock returned error: %v", err)
	}
	if m.Locked() {
		t.Error("lock should not be held after force release")
	}
}

func TestMemory_CursorAbsentByDefault(t *testing.T) {
	m := NewMemory(time.Minute)

	value, found, err := m.GetCursor(context.Background())
	if err != nil {
		t.Fatalf("GetCursor returned error: %v", err)
	}
	if found {
		t.Error("cursor should be absent before first SetCursor")
	}
	if value != 0 {
		t.Errorf("value = %d, want 0", value)
	}
}

func TestMemory_CursorRoundTrip(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx := context.Background()

	if err := m.SetCursor(ctx, 42100); err != nil {
		t.Fatalf("SetCursor returned error: %v", err)
	}

	value, found, err := m.GetCursor(ctx)
	if err != nil {
		t.Fatalf("GetCursor returned error: %v", err)
	}
	if !found {
		t.Fatal("cursor should be found after SetCursor")
	}
	if value != 42100 {
		t.Errorf("value = %d, want 42100", value)
	}
}
