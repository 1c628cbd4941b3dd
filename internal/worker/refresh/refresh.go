// Package refresh はミラー済みストーリーのスコアとコメント数を再取得するジョブを提供する。
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/hnmirror/internal/hn"
	"github.com/hitoshi/hnmirror/internal/model"
)

// StoryStore は再取得対象ストーリーの読み書きインターフェース。
type StoryStore interface {
	// ListStoriesForRefresh は取得時刻の古い順にストーリーを取得する。
	ListStoriesForRefresh(ctx context.Context, limit int) ([]*model.Item, error)
	// UpdateCounts はスコアとコメント数、取得時刻を更新する。
	UpdateCounts(ctx context.Context, id int64, score, descendantCount int, fetchedAt time.Time) error
}

// ItemSource は上流アイテムの取得インターフェース。
type ItemSource interface {
	FetchItem(ctx context.Context, id int64) (*hn.Item, error)
}

// Job はストーリーカウントのリフレッシュジョブ。
// 未読件数の算出に使うコメント数を定期的に上流へ問い合わせて更新する。
type Job struct {
	store     StoryStore
	source    ItemSource
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(store StoryStore, source ItemSource, logger *slog.Logger, interval time.Duration, batchSize int) *Job {
	if batchSize <= 0 {
		batchSize = 30
	}
	return &Job{
		store:     store,
		source:    source,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start はリフレッシュジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("リフレッシュジョブを開始しました",
		slog.Duration("interval", j.interval),
		slog.Int("batch_size", j.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("リフレッシュジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("リフレッシュサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回のリフレッシュサイクルを実行する。
// 個別の取得失敗はサイクルを止めず、前回値を維持する。
func (j *Job) RunOnce(ctx context.Context) error {
	stories, err := j.store.ListStoriesForRefresh(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("リフレッシュ対象ストーリーの取得に失敗しました: %w", err)
	}

	if len(stories) == 0 {
		return nil
	}

	var updatedCount int
	for _, story := range stories {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		src, err := j.source.FetchItem(ctx, story.ID)
		if err != nil {
			j.logger.Warn("ストーリーの再取得に失敗しました",
				slog.Int64("item_id", story.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if src == nil {
			continue
		}

		if err := j.store.UpdateCounts(ctx, story.ID, src.Score, src.Descendants, time.Now().UTC()); err != nil {
			j.logger.Error("ストーリーカウントの更新に失敗しました",
				slog.Int64("item_id", story.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		updatedCount++
	}

	j.logger.Info("リフレッシュサイクルが完了しました",
		slog.Int("target_items", len(stories)),
		slog.Int("updated_items", updatedCount),
	)

	return nil
}
