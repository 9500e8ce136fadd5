package security

import (
	"fmt"
	"net/url"
	"strings"
)

// youtubeHosts は動画リンクとして表示を許可するホスト。
var youtubeHosts = []string{"youtube.com", "www.youtube.com", "m.youtube.com", "youtu.be"}

// MediaResolver は商品画像のパスを配信元の絶対URLに変換する。
type MediaResolver struct {
	base *url.URL
}

// NewMediaResolver は配信元のベースURLからMediaResolverを生成する。
// baseURLが空の場合は相対パスをそのまま返す。
func NewMediaResolver(baseURL string) (*MediaResolver, error) {
	if baseURL == "" {
		return &MediaResolver{}, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid media base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("media base URL must be http or https: %s", baseURL)
	}
	return &MediaResolver{base: u}, nil
}

// Resolve は画像パスを絶対URLにする。
// 既に絶対URLの場合はhttp(s)ならそのまま返し、それ以外のスキームは空文字列にする。
func (m *MediaResolver) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		if u.Scheme == "http" || u.Scheme == "https" {
			return u.String()
		}
		return ""
	}
	if m == nil || m.base == nil {
		return ref
	}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return m.base.ResolveReference(u).String()
}

// SafeVideoLink は動画リンクがYouTubeのhttp(s)URLであれば正規化して返す。
func SafeVideoLink(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range youtubeHosts {
		if host == h {
			u.Scheme = "https"
			return u.String(), true
		}
	}
	return "", false
}
