package browse

import "github.com/hitoshi/gamehub/internal/model"

// Store は現在の絞り込み条件で表示する商品列。
// 重複除去は行わない。上流のページ境界がずれた場合は同じ商品が2回並ぶことがある。
// 並行アクセスは Coordinator のロックで保護する。
type Store struct {
	items []model.Product
}

// Append はページの商品を末尾に追加する。
func (s *Store) Append(items []model.Product) {
	s.items = append(s.items, items...)
}

// Replace は全商品を入れ替える。
func (s *Store) Replace(items []model.Product) {
	s.items = append(make([]model.Product, 0, len(items)), items...)
}

// Len は件数を返す。
func (s *Store) Len() int {
	return len(s.items)
}

// Items は商品列のコピーを返す。
func (s *Store) Items() []model.Product {
	return append(make([]model.Product, 0, len(s.items)), s.items...)
}

// Find はIDで商品を探す。
func (s *Store) Find(id string) (model.Product, bool) {
	for _, p := range s.items {
		if p.CanonicalID() == id {
			return p, true
		}
	}
	return model.Product{}, false
}
