package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/hnmirror/internal/model"
)

// SQLiteIdentityRepo はSQLiteを使用した追跡ユーザーリポジトリ。
type SQLiteIdentityRepo struct {
	db *sql.DB
}

// NewSQLiteIdentityRepo はSQLiteIdentityRepoを生成する。
func NewSQLiteIdentityRepo(db *sql.DB) *SQLiteIdentityRepo {
	return &SQLiteIdentityRepo{db: db}
}

// Upsert は追跡ユーザーを冪等に登録する。
// UNIQUE(identifier)制約を利用したINSERT ON CONFLICT DO NOTHINGで実装し、
// すでに存在する場合は既存行をそのまま返す。
func (r *SQLiteIdentityRepo) Upsert(ctx context.Context, identifier string) (*model.TrackedIdentity, error) {
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tracked_identities (id, identifier, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (identifier) DO NOTHING`,
		uuid.New().String(), identifier, now,
	)
	if err != nil {
		return nil, fmt.Errorf("追跡ユーザーの登録に失敗しました: %w", err)
	}

	identity, err := r.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, fmt.Errorf("登録直後の追跡ユーザーが見つかりません: %s", identifier)
	}
	return identity, nil
}

// FindByIdentifier は指定ユーザー名の追跡ユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLiteIdentityRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.TrackedIdentity, error) {
	identity := &model.TrackedIdentity{}
	var lastChecked sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, identifier, last_checked_at, created_at
		 FROM tracked_identities WHERE identifier = ?`,
		identifier,
	).Scan(&identity.ID, &identity.Identifier, &lastChecked, &identity.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("追跡ユーザーの取得に失敗しました: %w", err)
	}

	if lastChecked.Valid {
		identity.LastCheckedAt = &lastChecked.Time
	}
	return identity, nil
}

// List は全追跡ユーザーを登録順で返す。
func (r *SQLiteIdentityRepo) List(ctx context.Context) ([]*model.TrackedIdentity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, identifier, last_checked_at, created_at
		 FROM tracked_identities ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("追跡ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var identities []*model.TrackedIdentity
	for rows.Next() {
		identity := &model.TrackedIdentity{}
		var lastChecked sql.NullTime
		if err := rows.Scan(&identity.ID, &identity.Identifier, &lastChecked, &identity.CreatedAt); err != nil {
			return nil, fmt.Errorf("追跡ユーザー行の読み取りに失敗しました: %w", err)
		}
		if lastChecked.Valid {
			identity.LastCheckedAt = &lastChecked.Time
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

// ListSummaries は全追跡ユーザーを所有アイテムの総数・未読数付きで返す。
func (r *SQLiteIdentityRepo) ListSummaries(ctx context.Context) ([]model.IdentitySummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.identifier, t.last_checked_at, t.created_at,
		        COUNT(i.id),
		        COALESCE(SUM(CASE WHEN i.is_read = 0 THEN 1 ELSE 0 END), 0)
		 FROM tracked_identities t
		 LEFT JOIN items i ON i.owner_identifier = t.identifier AND i.author = t.identifier
		 GROUP BY t.id
		 ORDER BY t.created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("追跡ユーザーサマリーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var summaries []model.IdentitySummary
	for rows.Next() {
		var s model.IdentitySummary
		var lastChecked sql.NullTime
		if err := rows.Scan(&s.ID, &s.Identifier, &lastChecked, &s.CreatedAt, &s.TotalItems, &s.UnreadItems); err != nil {
			return nil, fmt.Errorf("追跡ユーザーサマリー行の読み取りに失敗しました: %w", err)
		}
		if lastChecked.Valid {
			s.LastCheckedAt = &lastChecked.Time
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// TouchLastChecked は指定ユーザーのlast_checked_atを更新する。
func (r *SQLiteIdentityRepo) TouchLastChecked(ctx context.Context, identifier string, checkedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tracked_identities SET last_checked_at = ? WHERE identifier = ?`,
		checkedAt.UTC(), identifier,
	)
	if err != nil {
		return fmt.Errorf("last_checked_atの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*SQLiteIdentityRepo)(nil)
