package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/hnmirror/internal/model"
)

// itemColumns はitemsテーブルのSELECT対象カラム。scanItemと対応する。
const itemColumns = `id, owner_identifier, kind, author, created_at, title, text, url,
	score, parent_id, descendant_count, fetched_at, is_read,
	last_known_descendant_count, thread_root_id, root_resolution_attempted`

// SQLiteItemRepo はSQLiteを使用したミラーアイテムリポジトリ。
type SQLiteItemRepo struct {
	db *sql.DB
}

// NewSQLiteItemRepo はSQLiteItemRepoを生成する。
func NewSQLiteItemRepo(db *sql.DB) *SQLiteItemRepo {
	return &SQLiteItemRepo{db: db}
}

// Upsert はアイテムをIDで冪等にUPSERTする（replace-by-id）。
// 同一IDへの再適用は全フィールドを最新値で置き換える。
// 上流IDをそのまま主キーとするため、firehose経路とオンデマンド経路が
// 同じアイテムを書いても1行に収束する。
func (r *SQLiteItemRepo) Upsert(ctx context.Context, item *model.Item) error {
	var parentID, rootID sql.NullInt64
	if item.ParentID != nil {
		parentID = sql.NullInt64{Int64: *item.ParentID, Valid: true}
	}
	if item.ThreadRootID != nil {
		rootID = sql.NullInt64{Int64: *item.ThreadRootID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (id, owner_identifier, kind, author, created_at, title, text, url,
		                    score, parent_id, descendant_count, fetched_at, is_read,
		                    last_known_descendant_count, thread_root_id, root_resolution_attempted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     owner_identifier = excluded.owner_identifier,
		     kind = excluded.kind,
		     author = excluded.author,
		     created_at = excluded.created_at,
		     title = excluded.title,
		     text = excluded.text,
		     url = excluded.url,
		     score = excluded.score,
		     parent_id = excluded.parent_id,
		     descendant_count = excluded.descendant_count,
		     fetched_at = excluded.fetched_at,
		     is_read = excluded.is_read,
		     last_known_descendant_count = excluded.last_known_descendant_count,
		     thread_root_id = excluded.thread_root_id,
		     root_resolution_attempted = excluded.root_resolution_attempted`,
		item.ID, item.OwnerIdentifier, string(item.Kind), item.Author, item.CreatedAt.UTC(),
		item.Title, item.Text, item.URL, item.Score, parentID, item.DescendantCount,
		item.FetchedAt.UTC(), item.IsRead, item.LastKnownDescendantCount, rootID,
		item.RootResolutionAttempted,
	)
	if err != nil {
		return fmt.Errorf("アイテムのUPSERTに失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
func (r *SQLiteItemRepo) FindByID(ctx context.Context, id int64) (*model.Item, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	return item, nil
}

// Exists は指定IDのアイテムがローカルに存在するかどうかを返す。
func (r *SQLiteItemRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("アイテムの存在確認に失敗しました: %w", err)
	}
	return true, nil
}

// ListByOwner は指定ユーザーの所有アイテムを投稿時刻の降順で返す。
// ルート解決のためだけに保存された祖先（author != owner）は含めない。
func (r *SQLiteItemRepo) ListByOwner(ctx context.Context, identifier string, limit int) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE owner_identifier = ? AND author = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		identifier, identifier, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("所有アイテム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListPendingRootResolution はルート解決が未完了のアイテムをID昇順で返す。
func (r *SQLiteItemRepo) ListPendingRootResolution(ctx context.Context, limit int, retryAttempted bool) ([]*model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items
	 WHERE parent_id IS NOT NULL AND thread_root_id IS NULL`
	if !retryAttempted {
		query += ` AND root_resolution_attempted = 0`
	}
	query += ` ORDER BY id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ルート解決待ちアイテムの取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// MarkRootResolutionAttempted は指定アイテムを解決試行済みにする。
func (r *SQLiteItemRepo) MarkRootResolutionAttempted(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET root_resolution_attempted = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("解決試行済みフラグの更新に失敗しました: %w", err)
	}
	return nil
}

// SetThreadRoot は指定アイテムのthread_root_idを設定し、解決試行済みにする。
func (r *SQLiteItemRepo) SetThreadRoot(ctx context.Context, id, rootID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET thread_root_id = ?, root_resolution_attempted = 1 WHERE id = ?`,
		rootID, id,
	)
	if err != nil {
		return fmt.Errorf("thread_root_idの設定に失敗しました: %w", err)
	}
	return nil
}

// MarkItemRead は指定アイテムを既読にし、
// last_known_descendant_countを現在のdescendant_countに更新する。
func (r *SQLiteItemRepo) MarkItemRead(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET is_read = 1, last_known_descendant_count = descendant_count
		 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("アイテムの既読化に失敗しました: %w", err)
	}
	return nil
}

// MarkThreadRead は指定ユーザーの所有アイテムのうち指定スレッドに属するものを一括既読にする。
// 対象はthread_root_idが一致するコメントと、ルートストーリー自身。
func (r *SQLiteItemRepo) MarkThreadRead(ctx context.Context, identifier string, rootID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET is_read = 1, last_known_descendant_count = descendant_count
		 WHERE owner_identifier = ?
		   AND (thread_root_id = ? OR id = ?)`,
		identifier, rootID, rootID,
	)
	if err != nil {
		return fmt.Errorf("スレッドの既読化に失敗しました: %w", err)
	}
	return nil
}

// ListStoriesForRefresh はカウント再取得対象のストーリーをfetched_atの昇順で返す。
// 最も長く更新されていないものから順に処理される。
func (r *SQLiteItemRepo) ListStoriesForRefresh(ctx context.Context, limit int) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE kind = ?
		 ORDER BY fetched_at
		 LIMIT ?`,
		string(model.KindStory), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("カウント再取得対象の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// UpdateCounts はアイテムのスコア・子孫数・取得時刻を更新する。
func (r *SQLiteItemRepo) UpdateCounts(ctx context.Context, id int64, score, descendantCount int, fetchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET score = ?, descendant_count = ?, fetched_at = ? WHERE id = ?`,
		score, descendantCount, fetchedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("アイテムカウントの更新に失敗しました: %w", err)
	}
	return nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem は1行をmodel.Itemに読み取る。
func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var kind string
	var parentID, rootID sql.NullInt64

	err := row.Scan(
		&item.ID, &item.OwnerIdentifier, &kind, &item.Author, &item.CreatedAt,
		&item.Title, &item.Text, &item.URL, &item.Score, &parentID,
		&item.DescendantCount, &item.FetchedAt, &item.IsRead,
		&item.LastKnownDescendantCount, &rootID, &item.RootResolutionAttempted,
	)
	if err != nil {
		return nil, err
	}

	item.Kind = model.ItemKind(kind)
	if parentID.Valid {
		item.ParentID = &parentID.Int64
	}
	if rootID.Valid {
		item.ThreadRootID = &rootID.Int64
	}
	return item, nil
}

// scanItems は全行をmodel.Itemのスライスに読み取る。
func scanItems(rows *sql.Rows) ([]*model.Item, error) {
	var items []*model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("アイテム行の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// compile-time interface check
var _ ItemRepository = (*SQLiteItemRepo)(nil)
