// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/hnmirror/internal/model"
)

// IdentityRepository は追跡ユーザーの永続化インターフェース。
type IdentityRepository interface {
	// Upsert は追跡ユーザーを冪等に登録する。
	// すでに存在する場合は既存行をそのまま返す。
	Upsert(ctx context.Context, identifier string) (*model.TrackedIdentity, error)

	// FindByIdentifier は指定ユーザー名の追跡ユーザーを取得する。見つからない場合はnilを返す。
	FindByIdentifier(ctx context.Context, identifier string) (*model.TrackedIdentity, error)

	// List は全追跡ユーザーを返す。
	List(ctx context.Context) ([]*model.TrackedIdentity, error)

	// ListSummaries は全追跡ユーザーを所有アイテムの総数・未読数付きで返す。
	ListSummaries(ctx context.Context) ([]model.IdentitySummary, error)

	// TouchLastChecked は指定ユーザーのlast_checked_atを更新する。
	TouchLastChecked(ctx context.Context, identifier string, checkedAt time.Time) error
}

// ItemRepository はミラーアイテムの永続化インターフェース。
type ItemRepository interface {
	// Upsert はアイテムをIDで冪等にUPSERTする（replace-by-id）。
	// 同一IDへの再適用は全フィールドを最新値で置き換える。
	Upsert(ctx context.Context, item *model.Item) error

	// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Item, error)

	// Exists は指定IDのアイテムがローカルに存在するかどうかを返す。
	Exists(ctx context.Context, id int64) (bool, error)

	// ListByOwner は指定ユーザーの所有アイテムを投稿時刻の降順で返す。
	ListByOwner(ctx context.Context, identifier string, limit int) ([]*model.Item, error)

	// ListPendingRootResolution はルート解決が未完了のアイテムを返す。
	// 対象は親を持ち、thread_root_idが未設定のアイテム。
	// retryAttemptedが偽の場合は解決試行済み（root_resolution_attempted=1）を除外する。
	ListPendingRootResolution(ctx context.Context, limit int, retryAttempted bool) ([]*model.Item, error)

	// MarkRootResolutionAttempted は指定アイテムを解決試行済みにする。
	MarkRootResolutionAttempted(ctx context.Context, id int64) error

	// SetThreadRoot は指定アイテムのthread_root_idを設定し、解決試行済みにする。
	SetThreadRoot(ctx context.Context, id, rootID int64) error

	// MarkItemRead は指定アイテムを既読にし、
	// last_known_descendant_countを現在のdescendant_countに更新する。
	MarkItemRead(ctx context.Context, id int64) error

	// MarkThreadRead は指定ユーザーの所有アイテムのうち、指定スレッドに属するもの
	// （ルートストーリー自身を含む）を一括で既読にする。
	MarkThreadRead(ctx context.Context, identifier string, rootID int64) error

	// ListStoriesForRefresh はカウント再取得対象のストーリーをfetched_atの昇順で返す。
	ListStoriesForRefresh(ctx context.Context, limit int) ([]*model.Item, error)

	// UpdateCounts はアイテムのスコア・子孫数・取得時刻を更新する。
	UpdateCounts(ctx context.Context, id int64, score, descendantCount int, fetchedAt time.Time) error
}

// ThreadViewRepository はユーザーごとのスレッド閲覧状態の永続化インターフェース。
type ThreadViewRepository interface {
	// Upsert は閲覧状態を冪等にUPSERTし、last_seen_atを更新する。
	Upsert(ctx context.Context, identifier string, rootID int64, seenAt time.Time) (*model.ThreadView, error)

	// FindByOwnerAndRoot は指定ユーザー・スレッドの閲覧状態を取得する。
	// 見つからない場合はnilを返す。
	FindByOwnerAndRoot(ctx context.Context, identifier string, rootID int64) (*model.ThreadView, error)
}
