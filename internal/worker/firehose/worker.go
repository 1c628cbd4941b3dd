// Package firehose は上流の全アイテムストリームを歩く同期ワーカーを提供する。
// 分散ロックと再開可能カーソルで多重実行と取りこぼしを防ぐ。
package firehose

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/hnmirror/internal/coord"
	"github.com/hitoshi/hnmirror/internal/hn"
	"github.com/hitoshi/hnmirror/internal/metrics"
	"github.com/hitoshi/hnmirror/internal/model"
)

// ItemSource は上流アイテムの取得インターフェース。
type ItemSource interface {
	// FetchMaxID は上流の最大アイテムIDを取得する。
	FetchMaxID(ctx context.Context) (int64, error)
	// FetchItem は指定IDのアイテムを取得する。存在しない場合はnilを返す。
	FetchItem(ctx context.Context, id int64) (*hn.Item, error)
}

// IdentityStore は追跡対象アカウントの読み取りインターフェース。
type IdentityStore interface {
	List(ctx context.Context) ([]*model.TrackedIdentity, error)
	TouchLastChecked(ctx context.Context, identifier string, checkedAt time.Time) error
}

// ItemStore はミラーアイテムの書き込みインターフェース。
type ItemStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Upsert(ctx context.Context, item *model.Item) error
	SetThreadRoot(ctx context.Context, id, rootID int64) error
	MarkRootResolutionAttempted(ctx context.Context, id int64) error
}

// ItemBuilder は上流アイテムからミラーアイテムへの変換インターフェース。
type ItemBuilder interface {
	Build(src *hn.Item, owner string, fetchedAt time.Time) *model.Item
}

// RootResolver はローカルDBのみでのスレッドルート解決インターフェース。
type RootResolver interface {
	ResolveLocal(ctx context.Context, id int64) (model.RootResolution, error)
}

// Options はワーカーの動作パラメータ。
type Options struct {
	// BatchSize は1バッチで取得するアイテム数。
	BatchSize int
	// SeedOffset はカーソル未設定時に最大IDから遡る幅。
	SeedOffset int64
	// MaxConcurrency はバッチ内フェッチの最大並列数。
	MaxConcurrency int
}

// Worker はファイアホース同期パスを実行する。
// ロック取得に失敗したパスは何も処理せずスキップする。
type Worker struct {
	coord      coord.Client
	source     ItemSource
	identities IdentityStore
	items      ItemStore
	builder    ItemBuilder
	resolver   RootResolver
	collector  metrics.Collector
	logger     *slog.Logger
	opts       Options
}

// NewWorker はWorkerの新しいインスタンスを生成する。
func NewWorker(
	coordClient coord.Client,
	source ItemSource,
	identities IdentityStore,
	items ItemStore,
	builder ItemBuilder,
	resolver RootResolver,
	collector metrics.Collector,
	logger *slog.Logger,
	opts Options,
) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 10
	}
	return &Worker{
		coord:      coordClient,
		source:     source,
		identities: identities,
		items:      items,
		builder:    builder,
		resolver:   resolver,
		collector:  collector,
		logger:     logger,
		opts:       opts,
	}
}

// Start は起動時に残留ロックを解放し、指定間隔で同期パスを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	// 前回プロセスの異常終了で残ったロックを解放する
	if err := w.coord.ForceReleaseLock(ctx); err != nil {
		w.logger.Warn("起動時のロック解放に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("同期ワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("batch_size", w.opts.BatchSize),
		slog.Int("max_concurrency", w.opts.MaxConcurrency),
	)

	// 起動直後に1回実行
	if err := w.RunPass(ctx); err != nil {
		w.logger.Error("同期パスの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("同期ワーカーを停止しました")
			return
		case <-ticker.C:
			if err := w.RunPass(ctx); err != nil {
				w.logger.Error("同期パスの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunPass は同期パスを1回実行する。
// ロック取得から解放までが1パスで、カーソルはバッチごとに前進させる。
// 調整バックエンドに到達できない場合はフェイルクローズし、このパスをスキップする。
func (w *Worker) RunPass(ctx context.Context) error {
	acquired, err := w.coord.TryAcquireLock(ctx)
	if err != nil {
		w.collector.RecordLockDenied()
		w.logger.Warn("調整バックエンドに到達できないため同期パスをスキップします",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !acquired {
		w.collector.RecordLockDenied()
		w.logger.Info("ロックが取得できないため同期パスをスキップします")
		return nil
	}
	defer func() {
		if err := w.coord.ReleaseLock(ctx); err != nil {
			w.logger.Error("ロックの解放に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()

	w.collector.RecordPassStarted()
	start := time.Now()

	maxID, err := w.source.FetchMaxID(ctx)
	if err != nil {
		return fmt.Errorf("最大アイテムIDの取得に失敗しました: %w", err)
	}

	cursor, found, err := w.coord.GetCursor(ctx)
	if err != nil {
		return fmt.Errorf("カーソルの取得に失敗しました: %w", err)
	}
	if !found {
		cursor = maxID - w.opts.SeedOffset
		if cursor < 0 {
			cursor = 0
		}
		w.logger.Info("カーソルを初期化しました",
			slog.Int64("cursor", cursor),
			slog.Int64("max_id", maxID),
		)
	}

	identities, err := w.identities.List(ctx)
	if err != nil {
		return fmt.Errorf("追跡対象アカウントの取得に失敗しました: %w", err)
	}
	tracked := make(map[string]struct{}, len(identities))
	for _, identity := range identities {
		tracked[identity.Identifier] = struct{}{}
	}

	if len(tracked) == 0 {
		// 追跡対象がなければ取得せずカーソルだけ前進させる
		if cursor < maxID {
			if err := w.coord.SetCursor(ctx, maxID); err != nil {
				return fmt.Errorf("カーソルの保存に失敗しました: %w", err)
			}
			w.collector.RecordCursor(maxID)
		}
		w.logger.Info("追跡対象アカウントがないため同期パスを終了します",
			slog.Int64("cursor", maxID),
		)
		return nil
	}

	var fetched, mirrored, failed int

	for batchStart := cursor + 1; batchStart <= maxID; {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batchEnd := batchStart + int64(w.opts.BatchSize) - 1
		if batchEnd > maxID {
			batchEnd = maxID
		}

		results := w.fetchRange(ctx, batchStart, batchEnd)
		for _, res := range results {
			fetched++
			w.collector.RecordItemFetched()
			if res.err != nil {
				failed++
				w.collector.RecordFetchError()
				w.logger.Warn("アイテムの取得に失敗しました",
					slog.Int64("item_id", res.id),
					slog.String("error", res.err.Error()),
				)
				continue
			}
			if res.item == nil {
				continue
			}
			if _, ok := tracked[res.item.By]; !ok {
				continue
			}
			if err := w.mirrorItem(ctx, res.item); err != nil {
				return err
			}
			mirrored++
			w.collector.RecordItemMirrored()
		}

		// カーソルは処理済みバッチの末尾まで前進させる。後退はさせない
		if err := w.coord.SetCursor(ctx, batchEnd); err != nil {
			return fmt.Errorf("カーソルの保存に失敗しました: %w", err)
		}
		w.collector.RecordCursor(batchEnd)

		batchStart = batchEnd + 1
	}

	now := time.Now().UTC()
	for _, identity := range identities {
		if err := w.identities.TouchLastChecked(ctx, identity.Identifier, now); err != nil {
			w.logger.Error("最終確認時刻の更新に失敗しました",
				slog.String("identifier", identity.Identifier),
				slog.String("error", err.Error()),
			)
		}
	}

	duration := time.Since(start)
	w.collector.RecordPassDuration(duration)
	w.logger.Info("同期パスが完了しました",
		slog.Int64("cursor", maxID),
		slog.Int("fetched", fetched),
		slog.Int("mirrored", mirrored),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

type fetchResult struct {
	id   int64
	item *hn.Item
	err  error
}

// fetchRange は[start, end]のアイテムを並列で取得し、ID昇順の結果を返す。
// semaphoreパターンで最大並列数を制御する。
func (w *Worker) fetchRange(ctx context.Context, start, end int64) []fetchResult {
	results := make([]fetchResult, end-start+1)

	sem := make(chan struct{}, w.opts.MaxConcurrency)
	var wg sync.WaitGroup

	for id := start; id <= end; id++ {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			item, err := w.source.FetchItem(ctx, id)
			results[id-start] = fetchResult{id: id, item: item, err: err}
		}(id)
	}

	wg.Wait()
	return results
}

// mirrorItem は追跡対象アカウントのアイテムをローカルに保存し、
// ローカルDBのみでスレッドルート解決を試みる。
// 祖先欠落で未解決のアイテムはバックフィルジョブが後から解決する。
func (w *Worker) mirrorItem(ctx context.Context, src *hn.Item) error {
	// 再処理されたIDは既存の保存と既読状態を保持する
	exists, err := w.items.Exists(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("アイテムの存在確認に失敗しました: %w", err)
	}
	if exists {
		return nil
	}

	item := w.builder.Build(src, src.By, time.Now().UTC())
	if err := w.items.Upsert(ctx, item); err != nil {
		return fmt.Errorf("アイテムの保存に失敗しました: %w", err)
	}

	res, err := w.resolver.ResolveLocal(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("スレッドルート解決に失敗しました: %w", err)
	}

	switch res.State {
	case model.ResolutionResolved:
		if err := w.items.SetThreadRoot(ctx, item.ID, res.RootID); err != nil {
			return err
		}
	case model.ResolutionCycle, model.ResolutionDeadEnd:
		// ローカルで確定した終端。バックフィル対象にはしない
		if err := w.items.MarkRootResolutionAttempted(ctx, item.ID); err != nil {
			return err
		}
	case model.ResolutionMissingAncestor:
		// 未試行のまま残し、バックフィルでAPI併用解決に回す
		w.logger.Debug("祖先欠落によりスレッドルートを保留しました",
			slog.Int64("item_id", item.ID),
			slog.Int64("missing_id", res.MissingID),
		)
	}

	return nil
}
