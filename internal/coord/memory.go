package coord

import (
	"context"
	"sync"
	"time"
)

// Memory はプロセス内メモリを協調ストアとして使用するClient実装。
// 単一インスタンス構成（外部ストア不要）とテストで使用する。
// ロックのTTL・強制解放・カーソルのセマンティクスはRedisClientと同一。
type Memory struct {
	mu         sync.Mutex
	lockTTL    time.Duration
	locked     bool
	lockExpiry time.Time
	cursor     int64
	hasCursor  bool
}

// NewMemory はMemoryを生成する。
func NewMemory(lockTTL time.Duration) *Memory {
	return &Memory{lockTTL: lockTTL}
}

// TryAcquireLock はロック取得を試行する。
// 既存ロックが期限切れの場合は取得できる。
func (m *Memory) TryAcquireLock(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if m.locked && now.Before(m.lockExpiry) {
		return false, nil
	}
	m.locked = true
	m.lockExpiry = now.Add(m.lockTTL)
	return true, nil
}

// ReleaseLock は保持中のロックを解放する。
func (m *Memory) ReleaseLock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = false
	return nil
}

// ForceReleaseLock はロックを強制削除する。
func (m *Memory) ForceReleaseLock(ctx context.Context) error {
	return m.ReleaseLock(ctx)
}

// GetCursor は同期カーソルを取得する。未設定の場合は (0, false, nil) を返す。
func (m *Memory) GetCursor(ctx context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasCursor {
		return 0, false, nil
	}
	return m.cursor, true, nil
}

// SetCursor は同期カーソルを設定する。
func (m *Memory) SetCursor(ctx context.Context, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = value
	m.hasCursor = true
	return nil
}

// Locked は現在ロックが保持されているかどうかを返す（テスト用）。
func (m *Memory) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked && time.Now().Before(m.lockExpiry)
}

// compile-time interface check
var _ Client = (*Memory)(nil)
