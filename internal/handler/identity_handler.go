// Package handler はHTTP APIハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hnmirror/internal/model"
)

// IdentityServiceInterface は追跡ユーザーハンドラーが必要とするサービスインターフェース。
type IdentityServiceInterface interface {
	// Track は指定ユーザーを追跡対象として冪等に登録する。
	Track(ctx context.Context, identifier string) (*model.TrackedIdentity, error)
	// ListSummaries は全追跡ユーザーをアイテム総数・未読数付きで返す。
	ListSummaries(ctx context.Context) ([]model.IdentitySummary, error)
	// Sync は指定ユーザーの直近の投稿履歴をオンデマンドで同期する。
	Sync(ctx context.Context, identifier string) (*model.SyncResult, error)
}

// IdentityHandler は追跡ユーザー管理のHTTPハンドラー。
type IdentityHandler struct {
	service IdentityServiceInterface
}

// NewIdentityHandler はIdentityHandlerを生成する。
func NewIdentityHandler(service IdentityServiceInterface) *IdentityHandler {
	return &IdentityHandler{service: service}
}

// --- レスポンス型 ---

// identityResponse は追跡ユーザーのレスポンス。
type identityResponse struct {
	Identifier    string     `json:"identifier"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// identitySummaryResponse は一覧用の追跡ユーザーレスポンス。
type identitySummaryResponse struct {
	identityResponse
	TotalItems  int `json:"total_items"`
	UnreadItems int `json:"unread_items"`
}

// identityListResponse は追跡ユーザー一覧のレスポンス。
type identityListResponse struct {
	Identities []identitySummaryResponse `json:"identities"`
}

// trackRequest は追跡登録リクエストのボディ。
type trackRequest struct {
	Identifier string `json:"identifier"`
}

// syncResultResponse はオンデマンド同期結果のレスポンス。
type syncResultResponse struct {
	Identifier string `json:"identifier"`
	NewItems   int    `json:"new_items"`
	KnownItems int    `json:"known_items"`
}

// ListIdentities は追跡ユーザー一覧を取得する。
// GET /api/identities
func (h *IdentityHandler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListSummaries(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := identityListResponse{
		Identities: make([]identitySummaryResponse, 0, len(summaries)),
	}
	for _, s := range summaries {
		resp.Identities = append(resp.Identities, identitySummaryResponse{
			identityResponse: identityResponse{
				Identifier:    s.Identifier,
				LastCheckedAt: s.LastCheckedAt,
				CreatedAt:     s.CreatedAt,
			},
			TotalItems:  s.TotalItems,
			UnreadItems: s.UnreadItems,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// TrackIdentity はユーザーを追跡対象として登録する。
// POST /api/identities
func (h *IdentityHandler) TrackIdentity(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "リクエストフォーマットを確認してください。",
		})
		return
	}

	identity, err := h.service.Track(r.Context(), req.Identifier)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(identityResponse{
		Identifier:    identity.Identifier,
		LastCheckedAt: identity.LastCheckedAt,
		CreatedAt:     identity.CreatedAt,
	})
}

// SyncIdentity は指定ユーザーのオンデマンド同期を実行する。
// POST /api/identities/{identifier}/sync
func (h *IdentityHandler) SyncIdentity(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	result, err := h.service.Sync(r.Context(), identifier)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(syncResultResponse{
		Identifier: identifier,
		NewItems:   result.NewItems,
		KnownItems: result.KnownItems,
	})
}

// --- 共通ヘルパー ---

// apiErrorResponse はAPIエラーレスポンスのボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidIdentifier, model.ErrCodeInvalidItemID:
		return http.StatusBadRequest
	case model.ErrCodeIdentityNotFound, model.ErrCodeIdentityNotTracked, model.ErrCodeItemNotFound:
		return http.StatusNotFound
	case model.ErrCodeUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
