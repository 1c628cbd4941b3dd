// Package model はドメインモデルを定義する。
package model

import "time"

// ItemKind は上流アイテムの種別を表す。
// 値は上流APIのtypeフィールドと同一の文字列を使用する。
type ItemKind string

const (
	// KindStory はストーリー（トップレベル投稿）を表す。
	KindStory ItemKind = "story"
	// KindComment はコメントを表す。
	KindComment ItemKind = "comment"
	// KindJob は求人投稿を表す。
	KindJob ItemKind = "job"
	// KindPoll は投票を表す。
	KindPoll ItemKind = "poll"
	// KindPollOption は投票の選択肢を表す。
	KindPollOption ItemKind = "pollopt"
)

// Item は追跡対象ユーザーが投稿したアイテムのローカルミラーを表す。
// IDは上流のアイテムIDと一致するグローバル一意キー。
//
// OwnerIdentifierは原則として上流のauthorと一致する。
// 例外はスレッドルート解決のためだけに取得された祖先アイテムで、
// その場合は解決のきっかけとなったアイテムの所有者が記録される
// （保存上の都合であり、意味的な所有ではない）。
type Item struct {
	ID              int64
	OwnerIdentifier string
	Kind            ItemKind
	Author          string
	CreatedAt       time.Time // 上流の投稿時刻
	Title           string
	Text            string // サニタイズ済みHTML
	URL             string
	Score           int
	ParentID        *int64
	DescendantCount int
	FetchedAt       time.Time
	IsRead          bool
	// LastKnownDescendantCount はこのアイテムのスレッドを最後に既読にした
	// 時点でのDescendantCount。現在値との差分が「新着」数になる。
	LastKnownDescendantCount int
	// ThreadRootID が設定されている場合、必ずkind=storyの既存アイテムを指す。
	ThreadRootID *int64
	// RootResolutionAttempted が真でThreadRootIDが未設定の場合、
	// ルート解決は一度試行して失敗しており、自動では再試行されない。
	RootResolutionAttempted bool
}

// IsStory はアイテムがストーリーかどうかを返す。
func (i *Item) IsStory() bool {
	return i.Kind == KindStory
}

// NewDescendants は前回既読時からの新着コメント数を返す。負にはならない。
func (i *Item) NewDescendants() int {
	n := i.DescendantCount - i.LastKnownDescendantCount
	if n < 0 {
		return 0
	}
	return n
}

// ThreadGroup はスレッド単位にグループ化したアイテム一覧の1グループを表す。
// ストーリーは自分自身のIDを、コメントは解決済みThreadRootIDをルートとする。
// ルート未解決のコメントはそのアイテム単独のグループになる。
type ThreadGroup struct {
	// RootID はグループのキー。ルート未解決の場合はアイテム自身のID。
	RootID int64
	// Root はルートのストーリー（ローカルに存在する場合のみ）。
	Root *Item
	// Items はグループに属する所有アイテム（投稿時刻の昇順）。
	Items []*Item
	// Unresolved はルート解決が未完了のグループであることを示す。
	Unresolved bool
}
