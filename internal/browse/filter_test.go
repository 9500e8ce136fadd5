package browse

import (
	"testing"

	"github.com/hitoshi/gamehub/internal/model"
)

func TestFilterContext_Paginated(t *testing.T) {
	if MainTagFilter(model.MainTagGame).Paginated() {
		t.Error("主カテゴリはページ送りしないべき")
	}
	for _, fc := range []FilterContext{NoFilter(), TagFilter(model.Tag{ID: "a"}), SearchFilter("q")} {
		if !fc.Paginated() {
			t.Errorf("%s はページ送りするべき", fc)
		}
	}
}

func TestFilterContext_Equal(t *testing.T) {
	if !TagFilter(model.Tag{ID: "a", Name: "x"}).Equal(TagFilter(model.Tag{ID: "a"})) {
		t.Error("同じタグIDは同じ条件であるべき")
	}
	if SearchFilter("a").Equal(SearchFilter("b")) {
		t.Error("異なる検索語は異なる条件であるべき")
	}
	if NoFilter().Equal(MainTagFilter(model.MainTagGame)) {
		t.Error("種別が違えば異なる条件であるべき")
	}
}

func TestTitleFor(t *testing.T) {
	tests := []struct {
		fc   FilterContext
		want string
	}{
		{NoFilter(), "すべての商品"},
		{MainTagFilter(model.MainTagSoftware), "Software"},
		{TagFilter(model.Tag{ID: "a", Title: "Puzzle"}), "Puzzle"},
		{SearchFilter("zelda"), "「zelda」の検索結果"},
	}
	for _, tt := range tests {
		if got := titleFor(tt.fc); got != tt.want {
			t.Errorf("titleFor(%s) = %s, want %s", tt.fc, got, tt.want)
		}
	}
}

func TestStore_AppendKeepsDuplicates(t *testing.T) {
	var s Store
	s.Replace(products("a", 2))
	s.Append(products("a", 2))
	if s.Len() != 4 {
		t.Errorf("Len = %d, want 4（重複除去しない）", s.Len())
	}
	items := s.Items()
	items[0].Title = "changed"
	if s.Items()[0].Title == "changed" {
		t.Error("Items はコピーを返すべき")
	}
	s.Replace(nil)
	if s.Len() != 0 {
		t.Errorf("Replace後の Len = %d, want 0", s.Len())
	}
}
