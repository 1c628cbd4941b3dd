// Package coord は複数ワーカーインスタンス間の分散協調機構を提供する。
// 有効期限付きの相互排他ロックと、単調に前進する同期カーソルを扱う。
package coord

import "context"

const (
	// lockKey は同期パスの相互排他ロックのキー。
	lockKey = "hnmirror:sync:lock"
	// cursorKey は処理済み上流IDカーソルのキー。
	cursorKey = "hnmirror:sync:cursor"
)

// Client は協調ストアへの操作インターフェース。
// テスト時や単一インスタンス構成ではMemoryに差し替え可能。
//
// ロック取得に失敗した場合とストア自体に到達できない場合は区別される。
// 呼び出し元（同期ワーカー）はどちらの場合も同期をスキップする（fail closed）。
type Client interface {
	// TryAcquireLock はロック取得を試行する。取得できた場合のみtrueを返す。
	// ロックにはTTLが設定され、保持プロセスがクラッシュしても期限切れで解放される。
	TryAcquireLock(ctx context.Context) (bool, error)

	// ReleaseLock は保持中のロックを解放する。
	ReleaseLock(ctx context.Context) error

	// ForceReleaseLock はロックを所有者に関わらず強制的に削除する。
	// ワーカープロセスの起動時に前回クラッシュの残留ロックを掃除するために使う。
	ForceReleaseLock(ctx context.Context) error

	// GetCursor は同期カーソルを取得する。未設定の場合は (0, false, nil) を返す。
	GetCursor(ctx context.Context) (int64, bool, error)

	// SetCursor は同期カーソルを設定する。
	SetCursor(ctx context.Context, value int64) error
}
