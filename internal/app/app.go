// Package app はアプリケーションの起動とワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/hnmirror/internal/config"
	"github.com/hitoshi/hnmirror/internal/coord"
	"github.com/hitoshi/hnmirror/internal/database"
	"github.com/hitoshi/hnmirror/internal/handler"
	"github.com/hitoshi/hnmirror/internal/hn"
	"github.com/hitoshi/hnmirror/internal/identity"
	"github.com/hitoshi/hnmirror/internal/item"
	"github.com/hitoshi/hnmirror/internal/logger"
	"github.com/hitoshi/hnmirror/internal/metrics"
	"github.com/hitoshi/hnmirror/internal/middleware"
	"github.com/hitoshi/hnmirror/internal/repository"
	"github.com/hitoshi/hnmirror/internal/security"
	"github.com/hitoshi/hnmirror/internal/thread"
	"github.com/hitoshi/hnmirror/internal/worker/backfill"
	"github.com/hitoshi/hnmirror/internal/worker/firehose"
	"github.com/hitoshi/hnmirror/internal/worker/refresh"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database_path", cfg.DatabasePath),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newCoordClient は設定に応じた調整バックエンドのクライアントを生成する。
func newCoordClient(cfg *config.Config) (coord.Client, error) {
	if cfg.CoordinationBackend == "memory" {
		return coord.NewMemory(cfg.SyncLockTTL), nil
	}
	return coord.NewRedisClient(cfg.RedisURL, cfg.SyncLockTTL)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	identityRepo := repository.NewSQLiteIdentityRepo(db)
	itemRepo := repository.NewSQLiteItemRepo(db)
	threadViewRepo := repository.NewSQLiteThreadViewRepo(db)

	// 3. 上流クライアントとセキュリティサービスの初期化
	hnClient := hn.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		slog.Default(),
	)
	sanitizer := security.NewContentSanitizer()
	builder := item.NewBuilder(sanitizer)

	// 4. ドメインサービスの初期化
	apiResolver := thread.NewAPIResolver(itemRepo, hnClient, builder, slog.Default())
	identityService := identity.NewService(
		identityRepo, itemRepo, hnClient, builder, apiResolver,
		slog.Default(), cfg.OnDemandMaxItems,
	)
	itemService := item.NewService(identityRepo, itemRepo, threadViewRepo, slog.Default())

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral

	registry := prometheus.NewRegistry()
	metrics.NewPrometheusCollector(registry)

	deps := &handler.RouterDeps{
		Logger:          slog.Default(),
		RateLimiter:     middleware.NewRateLimiter(rateLimiterCfg),
		IdentityService: identityService,
		ItemService:     itemService,
		DB:              db,
		MetricsHandler:  metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// ファイアホース同期ワーカー、バックフィルジョブ、カウントリフレッシュジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 調整バックエンドへの接続
	coordClient, err := newCoordClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to coordination backend: %w", err)
	}

	// 3. リポジトリの初期化
	identityRepo := repository.NewSQLiteIdentityRepo(db)
	itemRepo := repository.NewSQLiteItemRepo(db)

	// 4. 上流クライアントとドメインサービスの初期化
	hnClient := hn.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		slog.Default(),
	)
	sanitizer := security.NewContentSanitizer()
	builder := item.NewBuilder(sanitizer)
	localResolver := thread.NewResolver(itemRepo)
	apiResolver := thread.NewAPIResolver(itemRepo, hnClient, builder, slog.Default())

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(registry)

	// 6. ワーカーの初期化
	syncWorker := firehose.NewWorker(
		coordClient, hnClient, identityRepo, itemRepo, builder, localResolver,
		collector, slog.Default(),
		firehose.Options{
			BatchSize:      cfg.SyncBatchSize,
			SeedOffset:     cfg.SyncSeedOffset,
			MaxConcurrency: cfg.FetchMaxConcurrent,
		},
	)

	backfillJob := backfill.NewJob(
		itemRepo, apiResolver, collector, slog.Default(),
		backfill.Config{
			Interval:       cfg.BackfillInterval,
			BatchSize:      cfg.BackfillBatchSize,
			ItemInterval:   cfg.BackfillItemInterval,
			RetryAttempted: cfg.BackfillRetryAttempted,
		},
	)

	refreshJob := refresh.NewJob(
		itemRepo, hnClient, slog.Default(), cfg.RefreshInterval, cfg.RefreshBatchSize,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("batch_size", cfg.SyncBatchSize),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	// メトリクスとヘルスチェックを提供する運用系HTTPサーバー
	opsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: newOpsHandler(db, registry),
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server listen error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("ops server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// バックフィルジョブとリフレッシュジョブをバックグラウンドで起動
	go backfillJob.Start(ctx)
	go refreshJob.Start(ctx)

	// ファイアホース同期ワーカーをメインgoroutineで実行（ブロッキング）
	syncWorker.Start(ctx, cfg.SyncInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// newOpsHandler はワーカープロセスの/healthと/metricsを提供するハンドラーを返す。
func newOpsHandler(db handler.HealthPinger, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_path", cfg.DatabasePath),
	)

	if err := database.RunMigrations(cfg.DatabasePath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
