package model

import "time"

// TrackedIdentity はミラー対象の投稿者を表す。
// Identifierは上流のユーザー名と一致する一意キー。
type TrackedIdentity struct {
	ID            string // uuid
	Identifier    string
	LastCheckedAt *time.Time
	CreatedAt     time.Time
}

// IdentitySummary は追跡ユーザーと派生カウントを結合した一覧表示用モデル。
type IdentitySummary struct {
	TrackedIdentity
	TotalItems  int
	UnreadItems int
}

// ThreadView はユーザーごとのスレッド閲覧状態を表す。
// (OwnerIdentifier, ThreadRootID) ごとに1行で、閲覧のたびにUPSERTされる。
type ThreadView struct {
	ID              string // uuid
	OwnerIdentifier string
	ThreadRootID    int64
	LastSeenAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SyncResult はオンデマンド同期の結果を表す。
type SyncResult struct {
	// NewItems は今回新たにミラーされたアイテム数。
	NewItems int
	// KnownItems はすでにローカルに存在していたためスキップされたアイテム数。
	KnownItems int
}
