package security

import "testing"

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxRunes int
		want     string
	}{
		{"空", "", 10, ""},
		{"タグを除く", "<p>最高の<strong>アクション</strong>ゲーム</p>", 0, "最高のアクションゲーム"},
		{"ブロック要素の境界は空白になる", "<p>1行目</p><p>2行目</p>", 0, "1行目 2行目"},
		{"連続空白をまとめる", "a \n\t b", 0, "a b"},
		{"scriptとstyleは出力しない", "<style>p{}</style>本文<script>x()</script>", 0, "本文"},
		{"実体参照を展開する", "R&amp;D", 0, "R&D"},
		{"切り詰める", "<p>あいうえおかきくけこ</p>", 5, "あいうえお…"},
		{"上限ちょうどは切り詰めない", "abcde", 5, "abcde"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt(tt.input, tt.maxRunes); got != tt.want {
				t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.input, tt.maxRunes, got, tt.want)
			}
		})
	}
}
