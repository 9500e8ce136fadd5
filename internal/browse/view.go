package browse

import (
	"fmt"

	"github.com/hitoshi/gamehub/internal/model"
)

// FilterView は有効な絞り込み条件の表示用表現。
type FilterView struct {
	Kind    string `json:"kind"`
	MainTag string `json:"main_tag,omitempty"`
	TagID   string `json:"tag_id,omitempty"`
	TagName string `json:"tag_name,omitempty"`
	Query   string `json:"query,omitempty"`
}

// SentinelView は番兵要素の待ち受け状態。
type SentinelView struct {
	Armed    bool `json:"armed"`
	MarginPx int  `json:"margin_px"`
}

// View は表示層に渡す画面状態。
type View struct {
	Version       uint64          `json:"version"`
	Title         string          `json:"title"`
	Filter        FilterView      `json:"filter"`
	Products      []model.Product `json:"products"`
	Count         int             `json:"count"`
	Page          int             `json:"page"`
	HasMore       bool            `json:"has_more"`
	Loading       bool            `json:"loading"`
	LoadingMore   bool            `json:"loading_more"`
	Error         *Banner         `json:"error,omitempty"`
	Partial       bool            `json:"partial"`
	SearchText    string          `json:"search_text"`
	SearchPending bool            `json:"search_pending"`
	Categories    []Category      `json:"categories"`
	Sentinel      SentinelView    `json:"sentinel"`
}

// titleFor は一覧見出しを返す。
func titleFor(fc FilterContext) string {
	switch fc.Kind {
	case KindSearch:
		return fmt.Sprintf("「%s」の検索結果", fc.Query)
	case KindMainTag:
		return string(fc.MainTag)
	case KindTag:
		return fc.Tag.DisplayName()
	default:
		return "すべての商品"
	}
}

func filterView(fc FilterContext) FilterView {
	fv := FilterView{Kind: fc.Kind.String()}
	switch fc.Kind {
	case KindMainTag:
		fv.MainTag = string(fc.MainTag)
	case KindTag:
		fv.TagID = fc.Tag.ID
		fv.TagName = fc.Tag.DisplayName()
	case KindSearch:
		fv.Query = fc.Query
	}
	return fv
}
