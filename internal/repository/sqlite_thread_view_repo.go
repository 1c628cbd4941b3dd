package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/hnmirror/internal/model"
)

// SQLiteThreadViewRepo はSQLiteを使用したスレッド閲覧状態リポジトリ。
type SQLiteThreadViewRepo struct {
	db *sql.DB
}

// NewSQLiteThreadViewRepo はSQLiteThreadViewRepoを生成する。
func NewSQLiteThreadViewRepo(db *sql.DB) *SQLiteThreadViewRepo {
	return &SQLiteThreadViewRepo{db: db}
}

// Upsert は閲覧状態を冪等にUPSERTし、last_seen_atを更新する。
// UNIQUE(owner_identifier, thread_root_id)制約を利用したINSERT ON CONFLICTで実装する。
func (r *SQLiteThreadViewRepo) Upsert(ctx context.Context, identifier string, rootID int64, seenAt time.Time) (*model.ThreadView, error) {
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO thread_views (id, owner_identifier, thread_root_id, last_seen_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_identifier, thread_root_id) DO UPDATE SET
		     last_seen_at = excluded.last_seen_at,
		     updated_at = excluded.updated_at`,
		uuid.New().String(), identifier, rootID, seenAt.UTC(), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("スレッド閲覧状態のUPSERTに失敗しました: %w", err)
	}

	return r.FindByOwnerAndRoot(ctx, identifier, rootID)
}

// FindByOwnerAndRoot は指定ユーザー・スレッドの閲覧状態を取得する。
// 見つからない場合はnilを返す。
func (r *SQLiteThreadViewRepo) FindByOwnerAndRoot(ctx context.Context, identifier string, rootID int64) (*model.ThreadView, error) {
	view := &model.ThreadView{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_identifier, thread_root_id, last_seen_at, created_at, updated_at
		 FROM thread_views WHERE owner_identifier = ? AND thread_root_id = ?`,
		identifier, rootID,
	).Scan(
		&view.ID, &view.OwnerIdentifier, &view.ThreadRootID,
		&view.LastSeenAt, &view.CreatedAt, &view.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スレッド閲覧状態の取得に失敗しました: %w", err)
	}
	return view, nil
}

// compile-time interface check
var _ ThreadViewRepository = (*SQLiteThreadViewRepo)(nil)
