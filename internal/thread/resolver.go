// Package thread はコメントの親ポインタを辿ってスレッドルートを特定する
// 解決機構を提供する。ローカルDBのみを読むウォークと、不足する祖先を
// 1件だけ上流から取得するAPI併用リゾルバの2段構成。
package thread

import (
	"context"
	"fmt"

	"github.com/hitoshi/hnmirror/internal/model"
)

// ItemFinder はウォークが必要とするローカル読み取りのインターフェース。
type ItemFinder interface {
	// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Item, error)
}

// Resolver はローカルDBのみを読むスレッドルート解決器。
// I/Oはローカル読み取りに限られ、副作用なしに何度でも呼び出せる。
type Resolver struct {
	items ItemFinder
}

// NewResolver はResolverを生成する。
func NewResolver(items ItemFinder) *Resolver {
	return &Resolver{items: items}
}

// ResolveLocal は指定アイテムのスレッドルートを親ポインタのウォークで特定する。
// 開始アイテムはローカルに存在していなければならない。
//
// 結果は三値:
//   - Resolved: kind=storyのルートに到達した
//   - MissingAncestor: 親チェーンの途中でローカルにない祖先に突き当たった
//     （MissingIDを上流から取得すれば解決できる可能性がある）
//   - Cycle / DeadEnd: 恒久的に解決不能（循環、または非storyで親なしの終端）
//
// 訪問済み集合は開始IDを含めて管理し、循環しても必ず停止する。
func (r *Resolver) ResolveLocal(ctx context.Context, id int64) (model.RootResolution, error) {
	cur, err := r.items.FindByID(ctx, id)
	if err != nil {
		return model.RootResolution{}, err
	}
	if cur == nil {
		return model.RootResolution{}, fmt.Errorf("解決対象のアイテムがローカルに存在しません: %d", id)
	}

	visited := map[int64]bool{id: true}

	for {
		if cur.IsStory() {
			return model.RootResolution{
				State:       model.ResolutionResolved,
				RootID:      cur.ID,
				LastKnownID: cur.ID,
			}, nil
		}

		if cur.ParentID == nil {
			// 非storyで親を持たない終端。上流から何を取得しても解決できない。
			return model.RootResolution{
				State:       model.ResolutionDeadEnd,
				LastKnownID: cur.ID,
			}, nil
		}

		parentID := *cur.ParentID
		if visited[parentID] {
			return model.RootResolution{
				State:       model.ResolutionCycle,
				LastKnownID: cur.ID,
			}, nil
		}
		visited[parentID] = true

		parent, err := r.items.FindByID(ctx, parentID)
		if err != nil {
			return model.RootResolution{}, err
		}
		if parent == nil {
			return model.RootResolution{
				State:       model.ResolutionMissingAncestor,
				MissingID:   parentID,
				LastKnownID: cur.ID,
			}, nil
		}
		cur = parent
	}
}
