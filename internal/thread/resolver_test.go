package thread

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/hnmirror/internal/model"
)

// --- モック定義 ---

// mapItemFinder はmapをバックにしたItemFinderのテスト用実装。
type mapItemFinder struct {
	items map[int64]*model.Item
}

func (m *mapItemFinder) FindByID(ctx context.Context, id int64) (*model.Item, error) {
	return m.items[id], nil
}

func ptrInt64(v int64) *int64 { return &v }

func storyItem(id int64) *model.Item {
	return &model.Item{ID: id, Kind: model.KindStory}
}

func commentItem(id, parentID int64) *model.Item {
	return &model.Item{ID: id, Kind: model.KindComment, ParentID: ptrInt64(parentID)}
}

func TestResolveLocal_StoryResolvesToItself(t *testing.T) {
	finder := &mapItemFinder{items: map[int64]*model.Item{
		100: storyItem(100),
	}}
	r := NewResolver(finder)

	res, err := r.ResolveLocal(context.Background(), 100)
	if err != nil {
		t.Fatalf("ResolveLocal returned error: %v", err)
	}
	if res.State != model.ResolutionResolved {
		t.Errorf("State = %s, want resolved", res.State)
	}
	if res.RootID != 100 {
		t.Errorf("RootID = %d, want 100", res.RootID)
	}
}

func TestResolveLocal_CommentChainReachesStory(t *testing.T) {
	// 103 -> 102 -> 101 -> 100(story)
	finder := &mapItemFinder{items: map[int64]*model.Item{
		100: storyItem(100),
		101: commentItem(101, 100),
		102: commentItem(102, 101),
		103: commentItem(103, 102),
	}}
	r := NewResolver(finder)

	res, err := r.ResolveLocal(context.Background(), 103)
	if err != nil {
		t.Fatalf("ResolveLocal returned error: %v", err)
	}
	if res.State != model.ResolutionResolved {
		t.Errorf("State = %s, want resolved", res.State)
	}
	if res.RootID != 100 {
		t.Errorf("RootID = %d, want 100", res.RootID)
	}
}

func TestResolveLocal_MissingAncestor(t *testing.T) {
	// 102 -> 101 -> 99(ローカルに不在)
	finder := &mapItemFinder{items: map[int64]*model.Item{
		101: commentItem(101, 99),
		102: commentItem(102, 101),
	}}
	r := NewResolver(finder)

	res, err := r.ResolveLocal(context.Background(), 102)
	if err != nil {
		t.Fatalf("ResolveLocal returned error: %v", err)
	}
	if res.State != model.ResolutionMissingAncestor {
		t.Errorf("State = %s, want missing_ancestor", res.State)
	}
	if res.MissingID != 99 {
		t.Errorf("MissingID = %d, want 99", res.MissingID)
	}
	if res.LastKnownID != 101 {
		t.Errorf("LastKnownID = %d, want 101", res.LastKnownID)
	}
}

func TestResolveLocal_CycleTerminates(t *testing.T) {
	// 101 -> 102 -> 101 の循環。無限ループせず循環として停止する
	finder := &mapItemFinder{items: map[int64]*model.Item{
		101: commentItem(101, 102),
		102: commentItem(102, 101),
	}}
	r := NewResolver(finder)

	res, err := r.ResolveLocal(context.Background(), 101)
	if err != nil {
		t.Fatalf("ResolveLocal returned error: %v", err)
	}
	if res.State != model.ResolutionCycle {
		t.Errorf("State = %s, want cycle", res.State)
	}
}

func TestResolveLocal_SelfReferenceIsCycle(t *testing.T) {
	// 自分自身を親に持つアイテム。訪問済み集合は開始IDを含むため循環になる
	finder := &mapItemFinder{items: map[int64]*model.Item{
		101: commentItem(101, 101),
	}}
	r := NewResolver(finder)

	res, err := r.ResolveLocal(context.Background(), 101)
	if err != nil {
		t.Fatalf("ResolveLocal returned error: %v", err)
	}
	if res.State != model.ResolutionCycle {
		t.Errorf("State = %s, want cycle", res.State)
	}
}

func TestResolveLocal_DeadEnd(t *testing.T) {
	// 親を持たない非storyの終端（削除済みアイテムの壊れたチェーン等）
	finder := &mapItemFinder{items: map[int64]*model.Item{
		101: {ID: 101, Kind: model.KindComment},
		102: commentItem(102, 101),
	}}
	r := NewResolver(finder)

	res, err := r.ResolveLocal(context.Background(), 102)
	if err != nil {
		t.Fatalf("ResolveLocal returned error: %v", err)
	}
	if res.State != model.ResolutionDeadEnd {
		t.Errorf("State = %s, want dead_end", res.State)
	}
}

func TestResolveLocal_StartItemMustExist(t *testing.T) {
	finder := &mapItemFinder{items: map[int64]*model.Item{}}
	r := NewResolver(finder)

	_, err := r.ResolveLocal(context.Background(), 100)
	if err == nil {
		t.Fatal("expected error for missing start item, got nil")
	}
}

// errItemFinder は常にエラーを返すItemFinder。
type errItemFinder struct{}

func (errItemFinder) FindByID(ctx context.Context, id int64) (*model.Item, error) {
	return nil, errors.New("db error")
}

func TestResolveLocal_PropagatesStoreError(t *testing.T) {
	r := NewResolver(errItemFinder{})

	_, err := r.ResolveLocal(context.Background(), 100)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
