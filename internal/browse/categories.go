package browse

import (
	"strings"

	"github.com/hitoshi/gamehub/internal/model"
)

// Category はサイドバーの主カテゴリとその配下の追加タグ。
type Category struct {
	MainTag  model.MainTag `json:"main_tag"`
	Tags     []model.Tag   `json:"tags"`
	Expanded bool          `json:"expanded"`
}

// Categories は商品に付いている追加タグを主カテゴリごとにまとめる。
// タグはIDで重複を除き、最初に現れた順に並べる。主カテゴリの無い商品は対象外。
func Categories(products []model.Product) []Category {
	cats := make([]Category, 0, len(model.MainTags))
	for _, mt := range model.MainTags {
		seen := make(map[string]struct{})
		tags := []model.Tag{}
		for _, p := range products {
			if p.MainTag != mt {
				continue
			}
			for _, t := range p.AdditionalTags {
				if t.ID == "" {
					continue
				}
				if _, ok := seen[t.ID]; ok {
					continue
				}
				seen[t.ID] = struct{}{}
				tags = append(tags, t)
			}
		}
		cats = append(cats, Category{MainTag: mt, Tags: tags})
	}
	return cats
}

// FilterCategories は name / title / tag のいずれかに query を含むタグだけを残す。
// 大文字小文字は区別しない。タグが残らなかった主カテゴリは取り除く。
func FilterCategories(cats []Category, query string) []Category {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return cats
	}
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		var tags []model.Tag
		for _, t := range c.Tags {
			if strings.Contains(strings.ToLower(t.Name), q) ||
				strings.Contains(strings.ToLower(t.Title), q) ||
				strings.Contains(strings.ToLower(t.Tag), q) {
				tags = append(tags, t)
			}
		}
		if len(tags) > 0 {
			c.Tags = tags
			out = append(out, c)
		}
	}
	return out
}

// markExpanded は選択中の主カテゴリ、または選択中のタグを含む主カテゴリを展開状態にする。
func markExpanded(cats []Category, mainTag model.MainTag, tag *model.Tag) {
	for i := range cats {
		if cats[i].MainTag == mainTag {
			cats[i].Expanded = true
			continue
		}
		if tag == nil {
			continue
		}
		for _, t := range cats[i].Tags {
			if t.ID == tag.ID {
				cats[i].Expanded = true
				break
			}
		}
	}
}
