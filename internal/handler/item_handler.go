package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hnmirror/internal/model"
)

// ItemServiceInterface はアイテムハンドラーが必要とするサービスインターフェース。
type ItemServiceInterface interface {
	// ListThreads は指定ユーザーの所有アイテムをスレッド単位にグループ化して返す。
	ListThreads(ctx context.Context, identifier string) ([]*model.ThreadGroup, error)
	// GetItem はアイテム詳細を返す。
	GetItem(ctx context.Context, id int64) (*model.Item, error)
	// MarkItemRead は指定アイテムを既読にする。
	MarkItemRead(ctx context.Context, id int64) error
	// MarkThreadRead は指定ユーザーの指定スレッドを一括で既読にする。
	MarkThreadRead(ctx context.Context, identifier string, rootID int64) error
}

// ItemHandler はミラーアイテムのHTTPハンドラー。
type ItemHandler struct {
	service ItemServiceInterface
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(service ItemServiceInterface) *ItemHandler {
	return &ItemHandler{service: service}
}

// --- レスポンス型 ---

// itemResponse はアイテムのレスポンス。
type itemResponse struct {
	ID              int64     `json:"id"`
	Kind            string    `json:"kind"`
	Author          string    `json:"author"`
	CreatedAt       time.Time `json:"created_at"`
	Title           string    `json:"title,omitempty"`
	Text            string    `json:"text,omitempty"` // サニタイズ済みHTML
	URL             string    `json:"url,omitempty"`
	Score           int       `json:"score"`
	ParentID        *int64    `json:"parent_id,omitempty"`
	DescendantCount int       `json:"descendant_count"`
	IsRead          bool      `json:"is_read"`
	NewDescendants  int       `json:"new_descendants"`
	ThreadRootID    *int64    `json:"thread_root_id,omitempty"`
}

// threadGroupResponse はスレッドグループのレスポンス。
type threadGroupResponse struct {
	RootID     int64          `json:"root_id"`
	Unresolved bool           `json:"unresolved"`
	Root       *itemResponse  `json:"root,omitempty"`
	Items      []itemResponse `json:"items"`
}

// threadListResponse はスレッド一覧のレスポンス。
type threadListResponse struct {
	Identifier string                `json:"identifier"`
	Threads    []threadGroupResponse `json:"threads"`
}

// toItemResponse はモデルをレスポンス型に変換する。
func toItemResponse(it *model.Item) itemResponse {
	return itemResponse{
		ID:              it.ID,
		Kind:            string(it.Kind),
		Author:          it.Author,
		CreatedAt:       it.CreatedAt,
		Title:           it.Title,
		Text:            it.Text,
		URL:             it.URL,
		Score:           it.Score,
		ParentID:        it.ParentID,
		DescendantCount: it.DescendantCount,
		IsRead:          it.IsRead,
		NewDescendants:  it.NewDescendants(),
		ThreadRootID:    it.ThreadRootID,
	}
}

// parseItemID はURLパラメータからアイテムIDを取り出す。
func parseItemID(r *http.Request, param string) (int64, *model.APIError) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidItemIDError(raw)
	}
	return id, nil
}

// ListThreads は指定ユーザーのスレッド一覧を取得する。
// GET /api/identities/{identifier}/threads
func (h *ItemHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	groups, err := h.service.ListThreads(r.Context(), identifier)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := threadListResponse{
		Identifier: identifier,
		Threads:    make([]threadGroupResponse, 0, len(groups)),
	}
	for _, group := range groups {
		tg := threadGroupResponse{
			RootID:     group.RootID,
			Unresolved: group.Unresolved,
			Items:      make([]itemResponse, 0, len(group.Items)),
		}
		if group.Root != nil {
			root := toItemResponse(group.Root)
			tg.Root = &root
		}
		for _, it := range group.Items {
			tg.Items = append(tg.Items, toItemResponse(it))
		}
		resp.Threads = append(resp.Threads, tg)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetItem はアイテム詳細を取得する。
// GET /api/items/{id}
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseItemID(r, "id")
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toItemResponse(item))
}

// MarkItemRead はアイテムを既読にする。
// PUT /api/items/{id}/read
func (h *ItemHandler) MarkItemRead(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseItemID(r, "id")
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.MarkItemRead(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkThreadRead はスレッドを一括で既読にする。
// PUT /api/identities/{identifier}/threads/{rootID}/read
func (h *ItemHandler) MarkThreadRead(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	rootID, apiErr := parseItemID(r, "rootID")
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.MarkThreadRead(r.Context(), identifier, rootID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
