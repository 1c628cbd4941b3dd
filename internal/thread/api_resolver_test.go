package thread

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/hnmirror/internal/hn"
	"github.com/hitoshi/hnmirror/internal/model"
)

// --- モック定義 ---

// mockResolutionStore はmapをバックにしたResolutionStoreのテスト用実装。
type mockResolutionStore struct {
	items          map[int64]*model.Item
	threadRoots    map[int64]int64
	attempted      map[int64]bool
	upsertedOwners map[int64]string
}

func newMockResolutionStore(items ...*model.Item) *mockResolutionStore {
	s := &mockResolutionStore{
		items:          make(map[int64]*model.Item),
		threadRoots:    make(map[int64]int64),
		attempted:      make(map[int64]bool),
		upsertedOwners: make(map[int64]string),
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *mockResolutionStore) FindByID(ctx context.Context, id int64) (*model.Item, error) {
	return s.items[id], nil
}

func (s *mockResolutionStore) Upsert(ctx context.Context, item *model.Item) error {
	s.items[item.ID] = item
	s.upsertedOwners[item.ID] = item.OwnerIdentifier
	return nil
}

func (s *mockResolutionStore) SetThreadRoot(ctx context.Context, id, rootID int64) error {
	s.threadRoots[id] = rootID
	s.attempted[id] = true
	return nil
}

func (s *mockResolutionStore) MarkRootResolutionAttempted(ctx context.Context, id int64) error {
	s.attempted[id] = true
	return nil
}

// mockFetcher はAncestorFetcherのテスト用モック。
type mockFetcher struct {
	fetchItemFunc func(ctx context.Context, id int64) (*hn.Item, error)
	calls         int
}

func (m *mockFetcher) FetchItem(ctx context.Context, id int64) (*hn.Item, error) {
	m.calls++
	if m.fetchItemFunc != nil {
		return m.fetchItemFunc(ctx, id)
	}
	return nil, nil
}

// passthroughBuilder はサニタイズを省いた最小限のItemBuilder実装。
type passthroughBuilder struct{}

func (passthroughBuilder) Build(src *hn.Item, owner string, fetchedAt time.Time) *model.Item {
	return &model.Item{
		ID:              src.ID,
		OwnerIdentifier: owner,
		Kind:            model.ItemKind(src.Type),
		Author:          src.By,
		ParentID:        src.Parent,
		FetchedAt:       fetchedAt,
	}
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestAPIResolver_FetchesMissingAncestorAndResolves(t *testing.T) {
	// 11(comment, parent=9) のみローカルにあり、9(story) は上流にだけ存在する
	store := newMockResolutionStore(commentItem(11, 9))
	fetcher := &mockFetcher{
		fetchItemFunc: func(ctx context.Context, id int64) (*hn.Item, error) {
			if id != 9 {
				t.Errorf("FetchItem called with id %d, want 9", id)
			}
			return &hn.Item{ID: 9, Type: "story", By: "bob"}, nil
		},
	}
	var buf bytes.Buffer
	r := NewAPIResolver(store, fetcher, passthroughBuilder{}, newTestLogger(&buf))

	res, err := r.Resolve(context.Background(), 11, "alice")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.State != model.ResolutionResolved {
		t.Errorf("State = %s, want resolved", res.State)
	}
	if got := store.threadRoots[11]; got != 9 {
		t.Errorf("thread root of 11 = %d, want 9", got)
	}
	// 祖先は呼び出し元のownerに帰属して保存される
	if owner := store.upsertedOwners[9]; owner != "alice" {
		t.Errorf("ancestor owner = %q, want alice", owner)
	}
}

func TestAPIResolver_FetchLimitedToOneCall(t *testing.T) {
	// 9を取得しても、9の親8がさらに不足する。追加の取得は行わない
	store := newMockResolutionStore(commentItem(11, 9))
	fetcher := &mockFetcher{
		fetchItemFunc: func(ctx context.Context, id int64) (*hn.Item, error) {
			return &hn.Item{ID: 9, Type: "comment", By: "bob", Parent: ptrInt64(8)}, nil
		},
	}
	var buf bytes.Buffer
	r := NewAPIResolver(store, fetcher, passthroughBuilder{}, newTestLogger(&buf))

	res, err := r.Resolve(context.Background(), 11, "alice")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.State != model.ResolutionMissingAncestor {
		t.Errorf("State = %s, want missing_ancestor", res.State)
	}
	if fetcher.calls != 1 {
		t.Errorf("FetchItem calls = %d, want 1", fetcher.calls)
	}
	if !store.attempted[11] {
		t.Error("item 11 should be marked as attempted")
	}
}

func TestAPIResolver_AncestorAbsentUpstream(t *testing.T) {
	// 不足する祖先が上流でも削除済み。チェーンは修復不能だが試行済みになる
	store := newMockResolutionStore(commentItem(11, 9))
	fetcher := &mockFetcher{
		fetchItemFunc: func(ctx context.Context, id int64) (*hn.Item, error) {
			return nil, nil
		},
	}
	var buf bytes.Buffer
	r := NewAPIResolver(store, fetcher, passthroughBuilder{}, newTestLogger(&buf))

	res, err := r.Resolve(context.Background(), 11, "alice")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.State != model.ResolutionMissingAncestor {
		t.Errorf("State = %s, want missing_ancestor", res.State)
	}
	if !store.attempted[11] {
		t.Error("item 11 should be marked as attempted")
	}
	if _, ok := store.threadRoots[11]; ok {
		t.Error("thread root should not be set")
	}
}

func TestAPIResolver_FetchErrorStillMarksAttempted(t *testing.T) {
	store := newMockResolutionStore(commentItem(11, 9))
	fetcher := &mockFetcher{
		fetchItemFunc: func(ctx context.Context, id int64) (*hn.Item, error) {
			return nil, errors.New("upstream unavailable")
		},
	}
	var buf bytes.Buffer
	r := NewAPIResolver(store, fetcher, passthroughBuilder{}, newTestLogger(&buf))

	_, err := r.Resolve(context.Background(), 11, "alice")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !store.attempted[11] {
		t.Error("item 11 should be marked as attempted even on fetch error")
	}
}

func TestAPIResolver_LocallyResolvableSkipsFetch(t *testing.T) {
	store := newMockResolutionStore(storyItem(9), commentItem(11, 9))
	fetcher := &mockFetcher{}
	var buf bytes.Buffer
	r := NewAPIResolver(store, fetcher, passthroughBuilder{}, newTestLogger(&buf))

	res, err := r.Resolve(context.Background(), 11, "alice")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.State != model.ResolutionResolved {
		t.Errorf("State = %s, want resolved", res.State)
	}
	if fetcher.calls != 0 {
		t.Errorf("FetchItem calls = %d, want 0", fetcher.calls)
	}
}

func TestAPIResolver_CycleIsTerminal(t *testing.T) {
	// 循環は上流から何を取得しても直らないため、取得せず試行済みにする
	store := newMockResolutionStore(commentItem(11, 12), commentItem(12, 11))
	fetcher := &mockFetcher{}
	var buf bytes.Buffer
	r := NewAPIResolver(store, fetcher, passthroughBuilder{}, newTestLogger(&buf))

	res, err := r.Resolve(context.Background(), 11, "alice")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.State != model.ResolutionCycle {
		t.Errorf("State = %s, want cycle", res.State)
	}
	if fetcher.calls != 0 {
		t.Errorf("FetchItem calls = %d, want 0", fetcher.calls)
	}
	if !store.attempted[11] {
		t.Error("item 11 should be marked as attempted")
	}
}
