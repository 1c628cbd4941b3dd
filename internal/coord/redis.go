package coord

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient はRedisを協調ストアとして使用するClient実装。
// ロックはSET NX EX（単一の原子的コマンド）で取得する。SETNXとEXPIREを
// 別々に発行すると、間でクラッシュした場合に期限なしロックが残留するため。
// 残留ロックへの保険として起動時のForceReleaseLockは引き続き必須。
type RedisClient struct {
	rdb     *redis.Client
	lockTTL time.Duration
}

// NewRedisClient はRedis接続URLからRedisClientを生成する。
// 接続確認は行わない。到達性はPingで確認すること。
func NewRedisClient(redisURL string, lockTTL time.Duration) (*RedisClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisClient{
		rdb:     redis.NewClient(opts),
		lockTTL: lockTTL,
	}, nil
}

// Ping は協調ストアへの到達性を確認する。
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// TryAcquireLock はSET NX EXでロック取得を試行する。
func (c *RedisClient) TryAcquireLock(ctx context.Context) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey, "locked", c.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock は保持中のロックを解放する。
func (c *RedisClient) ReleaseLock(ctx context.Context) error {
	if err := c.rdb.Del(ctx, lockKey).Err(); err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}

// ForceReleaseLock はロックを強制削除する。ReleaseLockと同じ操作だが、
// 起動時の残留ロック掃除という意図を呼び出し側で区別できるよう別名にしている。
func (c *RedisClient) ForceReleaseLock(ctx context.Context) error {
	return c.ReleaseLock(ctx)
}

// GetCursor は同期カーソルを取得する。未設定の場合は (0, false, nil) を返す。
func (c *RedisClient) GetCursor(ctx context.Context) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, cursorKey).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get sync cursor: %w", err)
	}
	cursor, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid sync cursor value %q: %w", val, err)
	}
	return cursor, true, nil
}

// SetCursor は同期カーソルを設定する。
func (c *RedisClient) SetCursor(ctx context.Context, value int64) error {
	if err := c.rdb.Set(ctx, cursorKey, strconv.FormatInt(value, 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to set sync cursor: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Client = (*RedisClient)(nil)
