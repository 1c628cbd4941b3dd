// Package item はミラーアイテムの構築と読み取り系サービスを提供する。
package item

import (
	"time"

	"github.com/hitoshi/hnmirror/internal/hn"
	"github.com/hitoshi/hnmirror/internal/model"
	"github.com/hitoshi/hnmirror/internal/security"
)

// Builder は上流アイテムからミラーアイテムを構築する。
// テキストは保存前にサニタイズされる。
type Builder struct {
	sanitizer security.ContentSanitizerService
}

// NewBuilder はBuilderを生成する。
func NewBuilder(sanitizer security.ContentSanitizerService) *Builder {
	return &Builder{sanitizer: sanitizer}
}

// Build は上流アイテムをownerに帰属するミラーアイテムに変換する。
// 投票選択肢（pollopt）はparentを持たずpollフィールドで親投票を指すため、
// 親ポインタとしてpollを採用し、ルート解決のウォークが投票まで辿れるようにする。
func (b *Builder) Build(src *hn.Item, owner string, fetchedAt time.Time) *model.Item {
	parent := src.Parent
	if parent == nil && src.Poll != nil {
		parent = src.Poll
	}

	return &model.Item{
		ID:              src.ID,
		OwnerIdentifier: owner,
		Kind:            model.ItemKind(src.Type),
		Author:          src.By,
		CreatedAt:       src.CreatedAt(),
		Title:           src.Title,
		Text:            b.sanitizer.Sanitize(src.Text),
		URL:             src.URL,
		Score:           src.Score,
		ParentID:        parent,
		DescendantCount: src.Descendants,
		FetchedAt:       fetchedAt.UTC(),
	}
}
