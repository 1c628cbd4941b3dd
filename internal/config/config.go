package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabasePath string

	// Coordination
	CoordinationBackend string // "redis" または "memory"
	RedisURL            string
	SyncLockTTL         time.Duration

	// Firehose sync
	SyncInterval       time.Duration
	SyncBatchSize      int
	SyncSeedOffset     int64
	FetchTimeout       time.Duration
	FetchMaxConcurrent int

	// Backfill
	BackfillInterval       time.Duration
	BackfillBatchSize      int
	BackfillItemInterval   time.Duration
	BackfillRetryAttempted bool

	// Count refresh
	RefreshInterval  time.Duration
	RefreshBatchSize int

	// On-demand sync
	OnDemandMaxItems int

	// Rate limit
	RateLimitGeneral int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabasePath = os.Getenv("DATABASE_PATH")
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("required environment variable is not set: DATABASE_PATH")
	}

	cfg.CoordinationBackend = getEnvString("COORDINATION_BACKEND", "redis")
	if cfg.CoordinationBackend != "redis" && cfg.CoordinationBackend != "memory" {
		return nil, fmt.Errorf("COORDINATION_BACKEND must be redis or memory, got %q", cfg.CoordinationBackend)
	}
	cfg.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	cfg.SyncLockTTL = getEnvDuration("SYNC_LOCK_TTL", 10*time.Minute)

	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 5*time.Minute)
	cfg.SyncBatchSize = getEnvInt("SYNC_BATCH_SIZE", 100)
	cfg.SyncSeedOffset = getEnvInt64("SYNC_SEED_OFFSET", 1000)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 20)

	cfg.BackfillInterval = getEnvDuration("BACKFILL_INTERVAL", 30*time.Minute)
	cfg.BackfillBatchSize = getEnvInt("BACKFILL_BATCH_SIZE", 50)
	cfg.BackfillItemInterval = getEnvDuration("BACKFILL_ITEM_INTERVAL", time.Second)
	cfg.BackfillRetryAttempted = getEnvBool("BACKFILL_RETRY_ATTEMPTED", false)

	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", 15*time.Minute)
	cfg.RefreshBatchSize = getEnvInt("REFRESH_BATCH_SIZE", 30)

	cfg.OnDemandMaxItems = getEnvInt("ONDEMAND_MAX_ITEMS", 100)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
