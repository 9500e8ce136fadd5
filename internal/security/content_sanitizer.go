package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は商品説明のHTMLをサニタイズする。
type ContentSanitizerService interface {
	// Sanitize は許可リスト外のタグと属性を除去した安全なHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// ContentSanitizer はbluemondayのポリシーを保持する。ポリシーは並行利用できる。
type ContentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer は商品説明向けのポリシーでContentSanitizerを生成する。
//   - 許可タグ: p, br, ul, ol, li, strong, em, b, i, h3, h4, blockquote, a
//   - aのhrefはhttpsの絶対URLのみ。target="_blank" と rel="noopener noreferrer" を付与
//   - 画像はギャラリーとして別に表示するため、説明文中のimgは除去する
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "b", "i",
		"h3", "h4", "blockquote",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.RequireNoFollowOnLinks(true)

	return &ContentSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
