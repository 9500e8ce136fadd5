package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gamehub/internal/middleware"
	"github.com/hitoshi/gamehub/internal/model"
	"github.com/hitoshi/gamehub/internal/security"
)

// excerptLength は一覧カード用の説明文抜粋の最大文字数。
const excerptLength = 160

// TagLister は追加タグの一覧を取得する。
type TagLister interface {
	ListTags(ctx context.Context) ([]model.Tag, error)
}

// Sanitizer は商品説明のHTMLを無害化する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// MediaResolver は画像パスを配信元の絶対URLにする。
type MediaResolver interface {
	Resolve(ref string) string
}

// ProductHandler は商品詳細とタグ一覧のHTTPハンドラー。
// 商品詳細は画面状態に読み込み済みの商品から返し、上流には問い合わせない。
type ProductHandler struct {
	registry  StorefrontRegistry
	tags      TagLister
	sanitizer Sanitizer
	media     MediaResolver
}

// NewProductHandler はProductHandlerを生成する。
func NewProductHandler(registry StorefrontRegistry, tags TagLister, sanitizer Sanitizer, media MediaResolver) *ProductHandler {
	return &ProductHandler{
		registry:  registry,
		tags:      tags,
		sanitizer: sanitizer,
		media:     media,
	}
}

// productDetailResponse は商品詳細のレスポンス。
type productDetailResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	MainTag     string     `json:"main_tag,omitempty"`
	Tags        []tagView  `json:"tags"`
	Description string     `json:"description"` // サニタイズ済みHTML
	Excerpt     string     `json:"excerpt"`
	Images      []string   `json:"images"`
	VideoURL    string     `json:"video_url,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type tagView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toTagViews(tags []model.Tag) []tagView {
	out := make([]tagView, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagView{ID: t.ID, Name: t.DisplayName()})
	}
	return out
}

func (h *ProductHandler) toDetail(p model.Product) productDetailResponse {
	images := []string{}
	for _, ref := range p.Gallery() {
		if u := h.media.Resolve(ref); u != "" {
			images = append(images, u)
		}
	}
	video, _ := security.SafeVideoLink(p.YoutubeLink)

	return productDetailResponse{
		ID:          p.CanonicalID(),
		Title:       p.Title,
		MainTag:     string(p.MainTag),
		Tags:        toTagViews(p.AdditionalTags),
		Description: h.sanitizer.Sanitize(p.Description),
		Excerpt:     security.Excerpt(p.Description, excerptLength),
		Images:      images,
		VideoURL:    video,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// GetProduct は読み込み済みの商品の詳細を返す。
// GET /api/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sfID, err := middleware.StorefrontIDFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	p, ok := h.registry.Get(sfID).Product(id)
	if !ok {
		handleServiceError(w, model.NewNotFoundError("商品", id))
		return
	}
	writeJSON(w, http.StatusOK, h.toDetail(p))
}

// ListTags はサイドバー用の追加タグ一覧を返す。
// GET /api/tags
func (h *ProductHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tags.ListTags(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": toTagViews(tags)})
}
