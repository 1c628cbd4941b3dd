// Package hn はHacker News公式API（Firebase v0）のクライアントを提供する。
// 全操作は独立・冪等な読み取りで、削除済みアイテムの不在は正常系として扱う。
package hn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// defaultBaseURL はHacker News APIのベースURL。
const defaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// Item は上流APIのアイテムレスポンスを表す。
// 削除・凍結済みアイテムは最小限のフィールドのみ持つ。
type Item struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	By          string  `json:"by"`
	Time        int64   `json:"time"` // unix秒
	Text        string  `json:"text"`
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
	Parent      *int64  `json:"parent"`
	Kids        []int64 `json:"kids"`
	Poll        *int64  `json:"poll"`
	Parts       []int64 `json:"parts"`
	Dead        bool    `json:"dead"`
	Deleted     bool    `json:"deleted"`
}

// CreatedAt は上流の投稿時刻をtime.Timeとして返す。
func (i *Item) CreatedAt() time.Time {
	return time.Unix(i.Time, 0).UTC()
}

// User は上流APIのユーザーレスポンスを表す。
type User struct {
	ID        string  `json:"id"`
	Created   int64   `json:"created"`
	Karma     int     `json:"karma"`
	Submitted []int64 `json:"submitted"` // 新しい順
}

// Client はHacker News APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    defaultBaseURL,
	}
}

// FetchMaxID は現在の最大アイテムIDを取得する。
func (c *Client) FetchMaxID(ctx context.Context) (int64, error) {
	var maxID int64
	if err := c.getJSON(ctx, c.baseURL+"/maxitem.json", &maxID); err != nil {
		return 0, fmt.Errorf("最大アイテムIDの取得に失敗しました: %w", err)
	}
	return maxID, nil
}

// FetchItem は指定IDのアイテムを取得する。
// 削除済み等でアイテムが存在しない場合は (nil, nil) を返す。不在はエラーではない。
func (c *Client) FetchItem(ctx context.Context, id int64) (*Item, error) {
	var item *Item
	if err := c.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", c.baseURL, id), &item); err != nil {
		return nil, fmt.Errorf("アイテム %d の取得に失敗しました: %w", id, err)
	}
	// 上流は不在アイテムに対してnullを返す
	if item == nil || item.Deleted {
		return nil, nil
	}
	return item, nil
}

// FetchUser は指定ユーザー名のユーザー情報を取得する。
// ユーザーが存在しない場合は (nil, nil) を返す。
// Submittedは新しい順の投稿IDリストで、呼び出し側でlimit件に切り詰めること。
func (c *Client) FetchUser(ctx context.Context, identifier string) (*User, error) {
	var user *User
	if err := c.getJSON(ctx, fmt.Sprintf("%s/user/%s.json", c.baseURL, identifier), &user); err != nil {
		return nil, fmt.Errorf("ユーザー %s の取得に失敗しました: %w", identifier, err)
	}
	return user, nil
}

// getJSON はGETリクエストを実行しレスポンスJSONをデコードする。
// 上流は不在リソースに対して200 + "null"を返すため、404は異常系として扱う。
func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "hnmirror/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("上流APIがエラーステータスを返しました",
			slog.String("url", url),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("上流APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
