// Package browse は商品一覧画面の状態機械を提供する。
// ページ単位の読み込み、絞り込み条件の切り替え、検索のデバウンス、無限スクロールの継続読み込みを扱い、
// 表示層にはイベントの投入と View の読み出しだけを求める。
package browse

import (
	"fmt"

	"github.com/hitoshi/gamehub/internal/model"
)

// FilterKind は絞り込み条件の種別。
type FilterKind int

const (
	// KindNone は絞り込みなし。
	KindNone FilterKind = iota
	// KindMainTag は主カテゴリによるクライアント側の絞り込み。
	KindMainTag
	// KindTag は追加タグによるサーバー側の絞り込み。
	KindTag
	// KindSearch は検索語によるサーバー側の絞り込み。
	KindSearch
)

// String はログとJSON出力用の種別名を返す。
func (k FilterKind) String() string {
	switch k {
	case KindMainTag:
		return "main_tag"
	case KindTag:
		return "tag"
	case KindSearch:
		return "search"
	default:
		return "none"
	}
}

// FilterContext は有効な絞り込み条件。常にいずれか1種類だけを持つ。
type FilterContext struct {
	Kind    FilterKind
	MainTag model.MainTag
	Tag     model.Tag
	Query   string
}

// NoFilter は絞り込みなしの条件を返す。
func NoFilter() FilterContext {
	return FilterContext{Kind: KindNone}
}

// MainTagFilter は主カテゴリの条件を返す。
func MainTagFilter(v model.MainTag) FilterContext {
	return FilterContext{Kind: KindMainTag, MainTag: v}
}

// TagFilter は追加タグの条件を返す。
func TagFilter(t model.Tag) FilterContext {
	return FilterContext{Kind: KindTag, Tag: t}
}

// SearchFilter は検索語の条件を返す。
func SearchFilter(q string) FilterContext {
	return FilterContext{Kind: KindSearch, Query: q}
}

// Paginated はサーバー側でページ送りする条件かを返す。
// 主カテゴリは読み込み済みデータへの絞り込みなので追加読み込みしない。
func (fc FilterContext) Paginated() bool {
	return fc.Kind != KindMainTag
}

// Equal は同じ条件かを返す。
func (fc FilterContext) Equal(other FilterContext) bool {
	if fc.Kind != other.Kind {
		return false
	}
	switch fc.Kind {
	case KindMainTag:
		return fc.MainTag == other.MainTag
	case KindTag:
		return fc.Tag.ID == other.Tag.ID
	case KindSearch:
		return fc.Query == other.Query
	default:
		return true
	}
}

// String はログ出力用の表現を返す。
func (fc FilterContext) String() string {
	switch fc.Kind {
	case KindMainTag:
		return fmt.Sprintf("main_tag(%s)", fc.MainTag)
	case KindTag:
		return fmt.Sprintf("tag(%s)", fc.Tag.ID)
	case KindSearch:
		return fmt.Sprintf("search(%q)", fc.Query)
	default:
		return "none"
	}
}

// endpoint はエラーメッセージの出し分けに使う取得元を返す。
func (fc FilterContext) endpoint() model.Endpoint {
	switch fc.Kind {
	case KindTag, KindMainTag:
		return model.EndpointFiltered
	case KindSearch:
		return model.EndpointSearch
	default:
		return model.EndpointList
	}
}

// LoadState はページ読み込みの進行状態。
type LoadState struct {
	Page        int  // 最後に取得できたページ（1始まり）
	HasMore     bool // 次のページが存在する見込み
	Loading     bool // 1ページ目を取得中
	LoadingMore bool // 継続ページを取得中
}

// Busy はいずれかの取得が進行中かを返す。
func (s LoadState) Busy() bool {
	return s.Loading || s.LoadingMore
}
