// Package identity は追跡ユーザーの登録とオンデマンド同期を提供する。
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/hitoshi/hnmirror/internal/hn"
	"github.com/hitoshi/hnmirror/internal/model"
	"github.com/hitoshi/hnmirror/internal/repository"
)

// ユーザー名は英数字・ハイフン・アンダースコアの2〜15文字。
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,15}$`)

// UserSource は上流ユーザーとアイテムの取得インターフェース。
type UserSource interface {
	// FetchUser は指定ユーザーを取得する。存在しない場合はnilを返す。
	FetchUser(ctx context.Context, identifier string) (*hn.User, error)
	// FetchItem は指定IDのアイテムを取得する。存在しない場合はnilを返す。
	FetchItem(ctx context.Context, id int64) (*hn.Item, error)
}

// ItemBuilder は上流アイテムからミラーアイテムへの変換インターフェース。
type ItemBuilder interface {
	Build(src *hn.Item, owner string, fetchedAt time.Time) *model.Item
}

// ThreadResolver はAPI併用のスレッドルート解決インターフェース。
// オンデマンド同期は呼び出し元が同期的に待つため、
// バックフィルに回さずその場で祖先の補完まで行う。
type ThreadResolver interface {
	Resolve(ctx context.Context, id int64, owner string) (model.RootResolution, error)
}

// Service は追跡ユーザーの登録・一覧・オンデマンド同期を提供する。
type Service struct {
	identities repository.IdentityRepository
	items      repository.ItemRepository
	source     UserSource
	builder    ItemBuilder
	resolver   ThreadResolver
	logger     *slog.Logger
	maxItems   int
}

// NewService はServiceの新しいインスタンスを生成する。
// maxItemsはオンデマンド同期で処理する投稿履歴の上限で、0以下の場合は100を使用する。
func NewService(
	identities repository.IdentityRepository,
	items repository.ItemRepository,
	source UserSource,
	builder ItemBuilder,
	resolver ThreadResolver,
	logger *slog.Logger,
	maxItems int,
) *Service {
	if maxItems <= 0 {
		maxItems = 100
	}
	return &Service{
		identities: identities,
		items:      items,
		source:     source,
		builder:    builder,
		resolver:   resolver,
		logger:     logger,
		maxItems:   maxItems,
	}
}

// Track は指定ユーザーを追跡対象として登録する。
// 登録は冪等で、すでに追跡中の場合は既存の行を返す。
// 上流に存在しないユーザーは登録できない。
func (s *Service) Track(ctx context.Context, identifier string) (*model.TrackedIdentity, error) {
	if !identifierPattern.MatchString(identifier) {
		return nil, model.NewInvalidIdentifierError(identifier)
	}

	user, err := s.source.FetchUser(ctx, identifier)
	if err != nil {
		return nil, model.NewUpstreamFailureError(err.Error())
	}
	if user == nil {
		return nil, model.NewIdentityNotFoundError(identifier)
	}

	identity, err := s.identities.Upsert(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("追跡ユーザーの登録に失敗しました: %w", err)
	}

	s.logger.Info("追跡ユーザーを登録しました",
		slog.String("identifier", identifier),
	)

	return identity, nil
}

// ListSummaries は全追跡ユーザーを所有アイテムの総数・未読数付きで返す。
func (s *Service) ListSummaries(ctx context.Context) ([]model.IdentitySummary, error) {
	return s.identities.ListSummaries(ctx)
}

// Sync は指定ユーザーの直近の投稿履歴をオンデマンドで同期する。
// ファイアホースは追跡開始以降のアイテムしか見ないため、
// 登録直後や手動リフレッシュ時の履歴補完はこのパスで行う。
// ローカルに既存のIDはスキップし、新規アイテムのみ取得・保存する。
func (s *Service) Sync(ctx context.Context, identifier string) (*model.SyncResult, error) {
	identity, err := s.identities.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("追跡ユーザーの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return nil, model.NewIdentityNotTrackedError(identifier)
	}

	user, err := s.source.FetchUser(ctx, identifier)
	if err != nil {
		return nil, model.NewUpstreamFailureError(err.Error())
	}
	if user == nil {
		return nil, model.NewIdentityNotFoundError(identifier)
	}

	submitted := user.Submitted
	if len(submitted) > s.maxItems {
		submitted = submitted[:s.maxItems]
	}

	result := &model.SyncResult{}
	for _, id := range submitted {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		exists, err := s.items.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("アイテムの存在確認に失敗しました: %w", err)
		}
		if exists {
			result.KnownItems++
			continue
		}

		src, err := s.source.FetchItem(ctx, id)
		if err != nil {
			// 個別の取得失敗は同期全体を止めない
			s.logger.Warn("アイテムの取得に失敗しました",
				slog.Int64("item_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if src == nil {
			continue
		}

		item := s.builder.Build(src, identifier, time.Now().UTC())
		if err := s.items.Upsert(ctx, item); err != nil {
			return nil, fmt.Errorf("アイテムの保存に失敗しました: %w", err)
		}

		if _, err := s.resolver.Resolve(ctx, item.ID, identifier); err != nil {
			s.logger.Warn("スレッドルートの解決に失敗しました",
				slog.Int64("item_id", item.ID),
				slog.String("error", err.Error()),
			)
		}

		result.NewItems++
	}

	if err := s.identities.TouchLastChecked(ctx, identifier, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("最終確認時刻の更新に失敗しました: %w", err)
	}

	s.logger.Info("オンデマンド同期が完了しました",
		slog.String("identifier", identifier),
		slog.Int("new_items", result.NewItems),
		slog.Int("known_items", result.KnownItems),
	)

	return result, nil
}
