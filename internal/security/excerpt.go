package security

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Excerpt は説明文HTMLからタグを除いたテキストを取り出し、maxRunes文字で切り詰める。
// 連続する空白は1つにまとめ、切り詰めた場合は末尾に "…" を付ける。
// script と style の中身は出力しない。
func Excerpt(rawHTML string, maxRunes int) string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))

	var b strings.Builder
	skip := 0
	space := false
loop:
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF を含め、以降は読めない
			break loop
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "li", "h3", "h4":
				space = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "li", "h3", "h4":
				space = true
			}
		case html.SelfClosingTagToken:
			space = true
		case html.TextToken:
			if skip > 0 {
				continue
			}
			for _, r := range string(z.Text()) {
				if unicode.IsSpace(r) {
					space = true
					continue
				}
				if space && b.Len() > 0 {
					b.WriteByte(' ')
				}
				space = false
				b.WriteRune(r)
			}
		}
	}

	text := b.String()
	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return strings.TrimRightFunc(string(runes[:maxRunes]), unicode.IsSpace) + "…"
}
