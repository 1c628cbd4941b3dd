package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, identity, item, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	ErrCodeIdentityNotTracked = "IDENTITY_NOT_TRACKED"
	ErrCodeInvalidIdentifier  = "INVALID_IDENTIFIER"
	ErrCodeItemNotFound       = "ITEM_NOT_FOUND"
	ErrCodeInvalidItemID      = "INVALID_ITEM_ID"
	ErrCodeUpstreamFailure    = "UPSTREAM_FAILURE"
)

// NewIdentityNotFoundError は上流にユーザーが存在しない場合のエラーを生成する。
func NewIdentityNotFoundError(identifier string) *APIError {
	return &APIError{
		Code:     ErrCodeIdentityNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが上流に存在しません: %s", identifier),
		Category: "identity",
		Action:   "ユーザー名の綴りを確認してください。",
	}
}

// NewIdentityNotTrackedError は未追跡ユーザーへの操作エラーを生成する。
func NewIdentityNotTrackedError(identifier string) *APIError {
	return &APIError{
		Code:     ErrCodeIdentityNotTracked,
		Message:  fmt.Sprintf("指定されたユーザーは追跡されていません: %s", identifier),
		Category: "identity",
		Action:   "先にユーザーを追跡登録してください。",
	}
}

// NewInvalidIdentifierError は無効なユーザー名エラーを生成する。
func NewInvalidIdentifierError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIdentifier,
		Message:  fmt.Sprintf("無効なユーザー名です: %s", reason),
		Category: "validation",
		Action:   "2〜15文字の英数字・ハイフン・アンダースコアで指定してください。",
	}
}

// NewItemNotFoundError はアイテム未検出エラーを生成する。
func NewItemNotFoundError(itemID int64) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定されたアイテムが見つかりません: %d", itemID),
		Category: "item",
		Action:   "アイテムIDを確認してください。",
	}
}

// NewInvalidItemIDError は無効なアイテムIDエラーを生成する。
func NewInvalidItemIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidItemID,
		Message:  fmt.Sprintf("無効なアイテムIDです: %s", raw),
		Category: "validation",
		Action:   "アイテムIDは正の整数で指定してください。",
	}
}

// NewUpstreamFailureError は上流API呼び出し失敗エラーを生成する。
func NewUpstreamFailureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  fmt.Sprintf("上流APIの呼び出しに失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
