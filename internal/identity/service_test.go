package identity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/hnmirror/internal/hn"
	"github.com/hitoshi/hnmirror/internal/model"
	"github.com/hitoshi/hnmirror/internal/thread"
)

// --- モック定義 ---

// fakeIdentityRepo はmapをバックにしたIdentityRepositoryのテスト用実装。
type fakeIdentityRepo struct {
	identities map[string]*model.TrackedIdentity
	touched    map[string]time.Time
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{
		identities: make(map[string]*model.TrackedIdentity),
		touched:    make(map[string]time.Time),
	}
}

func (f *fakeIdentityRepo) Upsert(ctx context.Context, identifier string) (*model.TrackedIdentity, error) {
	if existing, ok := f.identities[identifier]; ok {
		return existing, nil
	}
	identity := &model.TrackedIdentity{
		ID:         "test-uuid-" + identifier,
		Identifier: identifier,
		CreatedAt:  time.Now(),
	}
	f.identities[identifier] = identity
	return identity, nil
}

func (f *fakeIdentityRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.TrackedIdentity, error) {
	return f.identities[identifier], nil
}

func (f *fakeIdentityRepo) List(ctx context.Context) ([]*model.TrackedIdentity, error) {
	var out []*model.TrackedIdentity
	for _, identity := range f.identities {
		out = append(out, identity)
	}
	return out, nil
}

func (f *fakeIdentityRepo) ListSummaries(ctx context.Context) ([]model.IdentitySummary, error) {
	return nil, nil
}

func (f *fakeIdentityRepo) TouchLastChecked(ctx context.Context, identifier string, checkedAt time.Time) error {
	f.touched[identifier] = checkedAt
	return nil
}

// fakeItemRepo はmapをバックにしたItemRepositoryのテスト用実装。
// thread.ResolutionStoreも満たすため、実物のAPI併用リゾルバと組み合わせられる。
type fakeItemRepo struct {
	items       map[int64]*model.Item
	threadRoots map[int64]int64
	attempted   map[int64]bool
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{
		items:       make(map[int64]*model.Item),
		threadRoots: make(map[int64]int64),
		attempted:   make(map[int64]bool),
	}
}

func (f *fakeItemRepo) Upsert(ctx context.Context, item *model.Item) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeItemRepo) FindByID(ctx context.Context, id int64) (*model.Item, error) {
	return f.items[id], nil
}

func (f *fakeItemRepo) Exists(ctx context.Context, id int64) (bool, error) {
	_, ok := f.items[id]
	return ok, nil
}

func (f *fakeItemRepo) ListByOwner(ctx context.Context, identifier string, limit int) ([]*model.Item, error) {
	return nil, nil
}

func (f *fakeItemRepo) ListPendingRootResolution(ctx context.Context, limit int, retryAttempted bool) ([]*model.Item, error) {
	return nil, nil
}

func (f *fakeItemRepo) MarkRootResolutionAttempted(ctx context.Context, id int64) error {
	f.attempted[id] = true
	return nil
}

func (f *fakeItemRepo) SetThreadRoot(ctx context.Context, id, rootID int64) error {
	f.threadRoots[id] = rootID
	f.attempted[id] = true
	if item, ok := f.items[id]; ok {
		item.ThreadRootID = &rootID
	}
	return nil
}

func (f *fakeItemRepo) MarkItemRead(ctx context.Context, id int64) error { return nil }

func (f *fakeItemRepo) MarkThreadRead(ctx context.Context, identifier string, rootID int64) error {
	return nil
}

func (f *fakeItemRepo) ListStoriesForRefresh(ctx context.Context, limit int) ([]*model.Item, error) {
	return nil, nil
}

func (f *fakeItemRepo) UpdateCounts(ctx context.Context, id int64, score, descendantCount int, fetchedAt time.Time) error {
	return nil
}

// mockSource はUserSourceとthread.AncestorFetcherのテスト用モック。
type mockSource struct {
	users  map[string]*hn.User
	items  map[int64]*hn.Item
	errIDs map[int64]bool
}

func (m *mockSource) FetchUser(ctx context.Context, identifier string) (*hn.User, error) {
	return m.users[identifier], nil
}

func (m *mockSource) FetchItem(ctx context.Context, id int64) (*hn.Item, error) {
	if m.errIDs[id] {
		return nil, errors.New("fetch failed")
	}
	return m.items[id], nil
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

func ptrInt64(v int64) *int64 { return &v }

func newTestService(identities *fakeIdentityRepo, items *fakeItemRepo, source *mockSource, maxItems int) *Service {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	resolver := thread.NewAPIResolver(items, source, passthroughBuilder{}, logger)
	return NewService(identities, items, source, passthroughBuilder{}, resolver, logger, maxItems)
}

// --- Track のテスト ---

func TestTrack_RegistersNewIdentity(t *testing.T) {
	identities := newFakeIdentityRepo()
	source := &mockSource{users: map[string]*hn.User{
		"alice": {ID: "alice"},
	}}
	s := newTestService(identities, newFakeItemRepo(), source, 100)

	identity, err := s.Track(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Track returned error: %v", err)
	}
	if identity.Identifier != "alice" {
		t.Errorf("Identifier = %q, want alice", identity.Identifier)
	}
}

func TestTrack_IsIdempotent(t *testing.T) {
	identities := newFakeIdentityRepo()
	source := &mockSource{users: map[string]*hn.User{
		"alice": {ID: "alice"},
	}}
	s := newTestService(identities, newFakeItemRepo(), source, 100)

	first, err := s.Track(context.Background(), "alice")
	if err != nil {
		t.Fatalf("first Track returned error: %v", err)
	}
	second, err := s.Track(context.Background(), "alice")
	if err != nil {
		t.Fatalf("second Track returned error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repeated Track should return the same row: %q != %q", first.ID, second.ID)
	}
}

func TestTrack_RejectsInvalidIdentifier(t *testing.T) {
	s := newTestService(newFakeIdentityRepo(), newFakeItemRepo(), &mockSource{}, 100)

	for _, identifier := range []string{"", "a", "user with spaces", "日本語ユーザー"} {
		_, err := s.Track(context.Background(), identifier)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidIdentifier {
			t.Errorf("Track(%q) err = %v, want INVALID_IDENTIFIER", identifier, err)
		}
	}
}

func TestTrack_RejectsUnknownUpstreamUser(t *testing.T) {
	s := newTestService(newFakeIdentityRepo(), newFakeItemRepo(), &mockSource{users: map[string]*hn.User{}}, 100)

	_, err := s.Track(context.Background(), "nobody")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeIdentityNotFound {
		t.Errorf("err = %v, want IDENTITY_NOT_FOUND", err)
	}
}

// --- Sync のテスト ---

func TestSync_FetchesRecentSubmissionsAndResolvesRoots(t *testing.T) {
	// aliceの投稿は [10, 11, 12]。11はコメントで、その親9は
	// 他者(bob)のストーリーでまだローカルにない。
	// 同期後は 10, 11, 12, 9 の4行が保存され、11のルートは9になる。
	identities := newFakeIdentityRepo()
	identities.identities["alice"] = &model.TrackedIdentity{Identifier: "alice"}

	items := newFakeItemRepo()
	source := &mockSource{
		users: map[string]*hn.User{
			"alice": {ID: "alice", Submitted: []int64{12, 11, 10}},
		},
		items: map[int64]*hn.Item{
			9:  {ID: 9, Type: "story", By: "bob"},
			10: {ID: 10, Type: "story", By: "alice"},
			11: {ID: 11, Type: "comment", By: "alice", Parent: ptrInt64(9)},
			12: {ID: 12, Type: "story", By: "alice"},
		},
	}
	s := newTestService(identities, items, source, 100)

	result, err := s.Sync(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}

	if result.NewItems != 3 {
		t.Errorf("NewItems = %d, want 3", result.NewItems)
	}
	if result.KnownItems != 0 {
		t.Errorf("KnownItems = %d, want 0", result.KnownItems)
	}
	if len(items.items) != 4 {
		t.Fatalf("stored rows = %d, want 4 (10, 11, 12 and the fetched ancestor 9)", len(items.items))
	}
	if got := items.threadRoots[11]; got != 9 {
		t.Errorf("thread root of 11 = %d, want 9", got)
	}
	// 祖先9は保存上aliceに帰属する
	if owner := items.items[9].OwnerIdentifier; owner != "alice" {
		t.Errorf("ancestor owner = %q, want alice", owner)
	}
	if _, ok := identities.touched["alice"]; !ok {
		t.Error("lastCheckedAt should be touched after sync")
	}
}

func TestSync_SkipsKnownItems(t *testing.T) {
	identities := newFakeIdentityRepo()
	identities.identities["alice"] = &model.TrackedIdentity{Identifier: "alice"}

	items := newFakeItemRepo()
	items.items[10] = &model.Item{ID: 10, Kind: model.KindStory, IsRead: true}

	source := &mockSource{
		users: map[string]*hn.User{
			"alice": {ID: "alice", Submitted: []int64{11, 10}},
		},
		items: map[int64]*hn.Item{
			11: {ID: 11, Type: "story", By: "alice"},
		},
	}
	s := newTestService(identities, items, source, 100)

	result, err := s.Sync(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if result.NewItems != 1 || result.KnownItems != 1 {
		t.Errorf("result = %+v, want NewItems=1 KnownItems=1", result)
	}
	if !items.items[10].IsRead {
		t.Error("existing row should not be overwritten by on-demand sync")
	}
}

func TestSync_TruncatesSubmittedList(t *testing.T) {
	identities := newFakeIdentityRepo()
	identities.identities["alice"] = &model.TrackedIdentity{Identifier: "alice"}

	items := newFakeItemRepo()
	submitted := make([]int64, 10)
	sourceItems := make(map[int64]*hn.Item)
	for i := range submitted {
		id := int64(100 - i)
		submitted[i] = id
		sourceItems[id] = &hn.Item{ID: id, Type: "story", By: "alice"}
	}
	source := &mockSource{
		users: map[string]*hn.User{"alice": {ID: "alice", Submitted: submitted}},
		items: sourceItems,
	}
	s := newTestService(identities, items, source, 3)

	result, err := s.Sync(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if result.NewItems != 3 {
		t.Errorf("NewItems = %d, want 3 (bounded by maxItems)", result.NewItems)
	}
}

func TestSync_UntrackedIdentityIsRejected(t *testing.T) {
	s := newTestService(newFakeIdentityRepo(), newFakeItemRepo(), &mockSource{}, 100)

	_, err := s.Sync(context.Background(), "alice")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeIdentityNotTracked {
		t.Errorf("err = %v, want IDENTITY_NOT_TRACKED", err)
	}
}

func TestSync_AbsentItemsAreSkippedSilently(t *testing.T) {
	// 削除済みアイテムは不在として正常にスキップされる
	identities := newFakeIdentityRepo()
	identities.identities["alice"] = &model.TrackedIdentity{Identifier: "alice"}

	items := newFakeItemRepo()
	source := &mockSource{
		users: map[string]*hn.User{"alice": {ID: "alice", Submitted: []int64{11, 10}}},
		items: map[int64]*hn.Item{
			10: {ID: 10, Type: "story", By: "alice"},
		},
	}
	s := newTestService(identities, items, source, 100)

	result, err := s.Sync(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if result.NewItems != 1 {
		t.Errorf("NewItems = %d, want 1", result.NewItems)
	}
	if result.KnownItems != 0 {
		t.Errorf("KnownItems = %d, want 0", result.KnownItems)
	}
}
