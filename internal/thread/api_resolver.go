package thread

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/hnmirror/internal/hn"
	"github.com/hitoshi/hnmirror/internal/model"
)

// ResolutionStore はAPI併用リゾルバが必要とするローカル書き込みのインターフェース。
type ResolutionStore interface {
	ItemFinder

	// Upsert はアイテムをIDで冪等にUPSERTする。
	Upsert(ctx context.Context, item *model.Item) error

	// SetThreadRoot は指定アイテムのthread_root_idを設定し、解決試行済みにする。
	SetThreadRoot(ctx context.Context, id, rootID int64) error

	// MarkRootResolutionAttempted は指定アイテムを解決試行済みにする。
	MarkRootResolutionAttempted(ctx context.Context, id int64) error
}

// AncestorFetcher は不足する祖先を上流から取得するインターフェース。
type AncestorFetcher interface {
	// FetchItem は指定IDのアイテムを取得する。不在の場合は (nil, nil) を返す。
	FetchItem(ctx context.Context, id int64) (*hn.Item, error)
}

// ItemBuilder は上流アイテムをミラーアイテムに変換するインターフェース。
type ItemBuilder interface {
	Build(src *hn.Item, owner string, fetchedAt time.Time) *model.Item
}

// APIResolver はローカルウォークを上流からの祖先取得1回で補強するリゾルバ。
//
// ウォークがMissingAncestorで止まった場合のみ、不足IDを上流から1件取得して
// ローカルに保存し、ウォークをもう1回だけやり直す。API呼び出し数を抑えるため、
// 成否に関わらず対象アイテムは解決試行済みになる（自動再試行は行われない）。
type APIResolver struct {
	store   ResolutionStore
	local   *Resolver
	fetcher AncestorFetcher
	builder ItemBuilder
	logger  *slog.Logger
}

// NewAPIResolver はAPIResolverを生成する。
func NewAPIResolver(store ResolutionStore, fetcher AncestorFetcher, builder ItemBuilder, logger *slog.Logger) *APIResolver {
	return &APIResolver{
		store:   store,
		local:   NewResolver(store),
		fetcher: fetcher,
		builder: builder,
		logger:  logger,
	}
}

// Resolve は指定アイテムのルート解決を試行し、結果を永続化する。
//
// 解決に成功した場合はthread_root_idを設定する。失敗した場合も
// root_resolution_attemptedを立て、このアイテムが自動再試行の対象から
// 外れるようにする。祖先はownerに帰属させて保存する（保存上の帰属であり、
// 意味的な所有ではない）。
func (r *APIResolver) Resolve(ctx context.Context, id int64, owner string) (model.RootResolution, error) {
	res, err := r.local.ResolveLocal(ctx, id)
	if err != nil {
		return model.RootResolution{}, err
	}

	if res.Retryable() {
		res, err = r.resolveWithFetch(ctx, id, owner, res.MissingID)
		if err != nil {
			// 上流取得の失敗でも試行済みにする。再試行はバックフィルの
			// 再試行ポリシーが明示的に有効な場合のみ行われる。
			if markErr := r.store.MarkRootResolutionAttempted(ctx, id); markErr != nil {
				r.logger.Error("解決試行済みフラグの更新に失敗しました",
					slog.Int64("item_id", id),
					slog.String("error", markErr.Error()),
				)
			}
			return model.RootResolution{}, err
		}
	}

	if res.Resolved() {
		if err := r.store.SetThreadRoot(ctx, id, res.RootID); err != nil {
			return model.RootResolution{}, err
		}
		return res, nil
	}

	if err := r.store.MarkRootResolutionAttempted(ctx, id); err != nil {
		return model.RootResolution{}, err
	}
	return res, nil
}

// resolveWithFetch は不足する祖先を上流から1件取得し、ウォークをやり直す。
// 取得した祖先が不在（削除済み等）の場合、チェーンは修復できないため
// MissingAncestorのままの結果を返す。
func (r *APIResolver) resolveWithFetch(ctx context.Context, id int64, owner string, missingID int64) (model.RootResolution, error) {
	src, err := r.fetcher.FetchItem(ctx, missingID)
	if err != nil {
		return model.RootResolution{}, err
	}
	if src == nil {
		r.logger.Info("不足する祖先が上流に存在しません",
			slog.Int64("item_id", id),
			slog.Int64("missing_id", missingID),
		)
		return model.RootResolution{
			State:     model.ResolutionMissingAncestor,
			MissingID: missingID,
		}, nil
	}

	ancestor := r.builder.Build(src, owner, time.Now())
	if err := r.store.Upsert(ctx, ancestor); err != nil {
		return model.RootResolution{}, err
	}

	// 取得は1回まで。やり直したウォークが再びMissingAncestorで止まっても
	// 追加の取得は行わない。
	return r.local.ResolveLocal(ctx, id)
}
