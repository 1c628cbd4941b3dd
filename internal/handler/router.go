package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hnmirror/internal/middleware"
)

// HealthPinger はヘルスチェックで疎通確認する依存のインターフェース。
type HealthPinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	IdentityService IdentityServiceInterface
	ItemService     ItemServiceInterface

	// ヘルスチェック対象（データベース）
	DB HealthPinger

	// /metrics に公開するPrometheusハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	identityHandler := NewIdentityHandler(deps.IdentityService)
	itemHandler := NewItemHandler(deps.ItemService)

	// --- 運用系のルート ---

	r.Get("/health", healthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/identities", func(r chi.Router) {
			r.Get("/", identityHandler.ListIdentities)
			r.Post("/", identityHandler.TrackIdentity)

			r.Route("/{identifier}", func(r chi.Router) {
				// POST /api/identities/{identifier}/sync - オンデマンド同期（専用レート制限を追加）
				r.With(deps.RateLimiter.SyncMiddleware()).Post("/sync", identityHandler.SyncIdentity)

				r.Get("/threads", itemHandler.ListThreads)
				r.Put("/threads/{rootID}/read", itemHandler.MarkThreadRead)
			})
		})

		r.Route("/api/items/{id}", func(r chi.Router) {
			r.Get("/", itemHandler.GetItem)
			r.Put("/read", itemHandler.MarkItemRead)
		})
	})

	return r
}

// healthHandler はデータベースの疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(db HealthPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
