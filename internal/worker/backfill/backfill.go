// Package backfill は祖先欠落で未解決のアイテムをAPI併用で解決するバッチジョブを提供する。
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/hnmirror/internal/metrics"
	"github.com/hitoshi/hnmirror/internal/model"
)

// PendingStore は未解決アイテムの読み取りインターフェース。
type PendingStore interface {
	// ListPendingRootResolution はスレッドルート未解決のアイテムをID昇順で取得する。
	// retryAttemptedがfalseの場合、解決試行済みのアイテムは対象外となる。
	ListPendingRootResolution(ctx context.Context, limit int, retryAttempted bool) ([]*model.Item, error)
}

// ThreadResolver はAPI併用のスレッドルート解決インターフェース。
type ThreadResolver interface {
	Resolve(ctx context.Context, id int64, owner string) (model.RootResolution, error)
}

// Config はバッチジョブの設定パラメータ。
// 環境変数から設定可能。
type Config struct {
	// Interval はバッチジョブの実行間隔（デフォルト: 30分）。
	Interval time.Duration
	// BatchSize は1サイクルあたりの最大処理アイテム数（デフォルト: 50）。
	BatchSize int
	// ItemInterval はアイテムごとの処理間隔（デフォルト: 1秒）。
	ItemInterval time.Duration
	// RetryAttempted は解決試行済みのアイテムも再処理するかどうか。
	RetryAttempted bool
}

// DefaultConfig はデフォルトのバッチジョブ設定を返す。
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Minute,
		BatchSize:    50,
		ItemInterval: time.Second,
	}
}

// Job はスレッドルートのバックフィルジョブ。
// 定期的に未解決アイテムを取得し、欠落した祖先を上流APIから補完して
// スレッドルートの解決を再試行する。
type Job struct {
	store     PendingStore
	resolver  ThreadResolver
	collector metrics.Collector
	logger    *slog.Logger
	config    Config
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(
	store PendingStore,
	resolver ThreadResolver,
	collector metrics.Collector,
	logger *slog.Logger,
	config Config,
) *Job {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	return &Job{
		store:     store,
		resolver:  resolver,
		collector: collector,
		logger:    logger,
		config:    config,
	}
}

// Start はバッチジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info("バックフィルジョブを開始しました",
		slog.Duration("interval", j.config.Interval),
		slog.Int("batch_size", j.config.BatchSize),
		slog.Duration("item_interval", j.config.ItemInterval),
		slog.Bool("retry_attempted", j.config.RetryAttempted),
	)

	// 起動直後に1回実行
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("バックフィルサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("バックフィルジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("バックフィルサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回のバックフィルサイクルを実行する。
// アイテムごとに固定間隔を挟んで逐次処理し、個別の失敗はサイクルを止めない。
func (j *Job) RunOnce(ctx context.Context) error {
	start := time.Now()

	items, err := j.store.ListPendingRootResolution(ctx, j.config.BatchSize, j.config.RetryAttempted)
	if err != nil {
		return fmt.Errorf("未解決アイテムの取得に失敗しました: %w", err)
	}

	if len(items) == 0 {
		j.logger.Info("バックフィル対象のアイテムはありません")
		return nil
	}

	j.logger.Info("バックフィルサイクルを開始します",
		slog.Int("target_items", len(items)),
	)

	var resolvedCount, failedCount int

	for i, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// アイテム間インターバル（初回は待たない）
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(j.config.ItemInterval):
			}
		}

		res, err := j.resolver.Resolve(ctx, item.ID, item.OwnerIdentifier)
		if err != nil {
			failedCount++
			j.collector.RecordBackfillFailed()
			j.logger.Error("スレッドルートの解決に失敗しました",
				slog.Int64("item_id", item.ID),
				slog.String("error", err.Error()),
			)
			continue // このアイテムはスキップし次のアイテムへ
		}

		if res.Resolved() {
			resolvedCount++
			j.collector.RecordBackfillResolved()
		} else {
			failedCount++
			j.collector.RecordBackfillFailed()
			j.logger.Warn("スレッドルートを解決できませんでした",
				slog.Int64("item_id", item.ID),
				slog.String("state", string(res.State)),
				slog.Int64("missing_id", res.MissingID),
			)
		}
	}

	duration := time.Since(start)
	j.logger.Info("バックフィルサイクルが完了しました",
		slog.Int("target_items", len(items)),
		slog.Int("resolved_items", resolvedCount),
		slog.Int("failed_items", failedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
