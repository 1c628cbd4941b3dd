// Package item はミラーアイテムの変換と読み取り系の操作を提供する。
package item

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/hnmirror/internal/model"
	"github.com/hitoshi/hnmirror/internal/repository"
)

// defaultListLimit はスレッド一覧で走査する所有アイテム数の上限。
const defaultListLimit = 500

// Service はミラーアイテムの読み取りと既読管理を提供する。
type Service struct {
	identities  repository.IdentityRepository
	items       repository.ItemRepository
	threadViews repository.ThreadViewRepository
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	identities repository.IdentityRepository,
	items repository.ItemRepository,
	threadViews repository.ThreadViewRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		identities:  identities,
		items:       items,
		threadViews: threadViews,
		logger:      logger,
	}
}

// ListThreads は指定ユーザーの所有アイテムをスレッド単位にグループ化して返す。
// ストーリーは自身のIDをルートとするグループ、コメントはthread_root_idの
// グループに属する。ルート未解決のコメントは単独の暫定グループになる。
// グループは最新の投稿時刻の降順、グループ内は投稿時刻の昇順に並ぶ。
func (s *Service) ListThreads(ctx context.Context, identifier string) ([]*model.ThreadGroup, error) {
	identity, err := s.identities.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("追跡ユーザーの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return nil, model.NewIdentityNotTrackedError(identifier)
	}

	items, err := s.items.ListByOwner(ctx, identifier, defaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("所有アイテムの取得に失敗しました: %w", err)
	}

	groups := make(map[int64]*model.ThreadGroup)
	var order []int64

	appendTo := func(rootID int64, unresolved bool, it *model.Item) {
		group, ok := groups[rootID]
		if !ok {
			group = &model.ThreadGroup{RootID: rootID, Unresolved: unresolved}
			groups[rootID] = group
			order = append(order, rootID)
		}
		group.Items = append(group.Items, it)
	}

	for _, it := range items {
		switch {
		case it.IsStory():
			appendTo(it.ID, false, it)
		case it.ThreadRootID != nil:
			appendTo(*it.ThreadRootID, false, it)
		default:
			// ルート未解決のコメントは自身のIDで暫定グループを作る。
			// 解決され次第、次回の一覧から本来のスレッドに合流する
			appendTo(it.ID, true, it)
		}
	}

	result := make([]*model.ThreadGroup, 0, len(order))
	for _, rootID := range order {
		group := groups[rootID]

		// ルートアイテムの特定。グループ内に含まれていれば流用し、
		// そうでなければ別アカウント所有のルートをローカルから引く
		for _, it := range group.Items {
			if it.ID == group.RootID {
				group.Root = it
				break
			}
		}
		if group.Root == nil && !group.Unresolved {
			root, err := s.items.FindByID(ctx, group.RootID)
			if err != nil {
				return nil, fmt.Errorf("ルートアイテムの取得に失敗しました: %w", err)
			}
			group.Root = root
		}

		sort.Slice(group.Items, func(i, j int) bool {
			return group.Items[i].CreatedAt.Before(group.Items[j].CreatedAt)
		})
		result = append(result, group)
	}

	sort.Slice(result, func(i, j int) bool {
		return latestCreatedAt(result[i]).After(latestCreatedAt(result[j]))
	})

	return result, nil
}

// latestCreatedAt はグループ内の最新投稿時刻を返す。
func latestCreatedAt(group *model.ThreadGroup) time.Time {
	var latest time.Time
	for _, it := range group.Items {
		if it.CreatedAt.After(latest) {
			latest = it.CreatedAt
		}
	}
	return latest
}

// GetItem は指定IDのアイテムを取得する。
func (s *Service) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(id)
	}
	return item, nil
}

// MarkItemRead は指定アイテムを既読にする。
// 既読化の時点でlast_known_descendant_countが現在値に揃う。
func (s *Service) MarkItemRead(ctx context.Context, id int64) error {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return model.NewItemNotFoundError(id)
	}
	return s.items.MarkItemRead(ctx, id)
}

// MarkThreadRead は指定ユーザーの指定スレッドに属する所有アイテムを一括で既読にし、
// スレッドの閲覧状態を記録する。
func (s *Service) MarkThreadRead(ctx context.Context, identifier string, rootID int64) error {
	identity, err := s.identities.FindByIdentifier(ctx, identifier)
	if err != nil {
		return fmt.Errorf("追跡ユーザーの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return model.NewIdentityNotTrackedError(identifier)
	}

	if err := s.items.MarkThreadRead(ctx, identifier, rootID); err != nil {
		return fmt.Errorf("スレッドの既読化に失敗しました: %w", err)
	}

	if _, err := s.threadViews.Upsert(ctx, identifier, rootID, time.Now().UTC()); err != nil {
		return fmt.Errorf("スレッド閲覧状態の更新に失敗しました: %w", err)
	}

	s.logger.Info("スレッドを既読にしました",
		slog.String("identifier", identifier),
		slog.Int64("thread_root_id", rootID),
	)

	return nil
}
