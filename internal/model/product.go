package model

import "time"

// MainTag は商品の主カテゴリを表す。
type MainTag string

// 定義済みの主カテゴリ
const (
	MainTagGame     MainTag = "Game"
	MainTagSoftware MainTag = "Software"
)

// MainTags はサイドバーに表示する主カテゴリの順序。
var MainTags = []MainTag{MainTagGame, MainTagSoftware}

// Valid は既知の主カテゴリかどうかを返す。
func (m MainTag) Valid() bool {
	return m == MainTagGame || m == MainTagSoftware
}

// Tag は商品に付与される追加タグを表す。
// サーバーの応答によって name / title / tag のいずれかしか入っていないことがある。
type Tag struct {
	ID       string `json:"_id"`
	Name     string `json:"name,omitempty"`
	Title    string `json:"title,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Category string `json:"category,omitempty"`
}

// DisplayName は表示用のタグ名を返す。name、title、tagの順で最初に空でない値を使う。
func (t Tag) DisplayName() string {
	switch {
	case t.Name != "":
		return t.Name
	case t.Title != "":
		return t.Title
	case t.Tag != "":
		return t.Tag
	default:
		return t.ID
	}
}

// Product はカタログ上の1商品を表す。取得後は読み取り専用として扱う。
type Product struct {
	ID             string     `json:"id,omitempty"`
	MongoID        string     `json:"_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	MainTag        MainTag    `json:"mainTag,omitempty"`
	AdditionalTags []Tag      `json:"additionalTags,omitempty"`
	ImageURL       string     `json:"imageUrl,omitempty"`
	Path           string     `json:"path,omitempty"`
	GameImages     []string   `json:"gameImages,omitempty"`
	YoutubeLink    string     `json:"youtubeLink,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// CanonicalID は商品IDを返す。id が無い場合は _id を使う。
func (p Product) CanonicalID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.MongoID
}

// Gallery はメイン画像に続けてギャラリー画像を並べたURL一覧を返す。
func (p Product) Gallery() []string {
	images := make([]string, 0, len(p.GameImages)+1)
	if p.ImageURL != "" {
		images = append(images, p.ImageURL)
	}
	for _, img := range p.GameImages {
		if img != "" && img != p.ImageURL {
			images = append(images, img)
		}
	}
	return images
}

// HasTag は指定IDの追加タグが付与されているかを返す。
func (p Product) HasTag(tagID string) bool {
	for _, t := range p.AdditionalTags {
		if t.ID == tagID {
			return true
		}
	}
	return false
}

// PageResult は1ページ分の取得結果を表す。
// Page はサーバーが実際に返したページ番号（1始まり）。
type PageResult struct {
	Items []Product
	Page  int
}
