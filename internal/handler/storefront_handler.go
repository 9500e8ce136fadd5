package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/gamehub/internal/browse"
	"github.com/hitoshi/gamehub/internal/middleware"
	"github.com/hitoshi/gamehub/internal/model"
)

// defaultHeartbeat はSSE接続を維持するためのコメント送信間隔。
const defaultHeartbeat = 15 * time.Second

// StorefrontRegistry はブラウザごとの画面状態を返す。
type StorefrontRegistry interface {
	Get(id string) *browse.Storefront
}

// StorefrontHandler は商品一覧画面の操作を受け付けるHTTPハンドラー。
// 操作は画面状態に反映するだけで、結果は View として返すかSSEで配信する。
type StorefrontHandler struct {
	registry  StorefrontRegistry
	heartbeat time.Duration
}

// NewStorefrontHandler はStorefrontHandlerを生成する。
func NewStorefrontHandler(registry StorefrontRegistry) *StorefrontHandler {
	return &StorefrontHandler{registry: registry, heartbeat: defaultHeartbeat}
}

type tagRequest struct {
	TagID string `json:"tag_id"`
}

type mainTagRequest struct {
	Value string `json:"value"`
}

type searchRequest struct {
	Text string `json:"text"`
}

// actionResponse は受理可否を伴う操作のレスポンス。
type actionResponse struct {
	Accepted bool        `json:"accepted"`
	View     browse.View `json:"view"`
}

// storefront はリクエストの画面状態を返す。Storefrontミドルウェアの後でのみ有効。
func (h *StorefrontHandler) storefront(w http.ResponseWriter, r *http.Request) (*browse.Storefront, bool) {
	id, err := middleware.StorefrontIDFromContext(r.Context())
	if err != nil {
		slog.Error("storefront id missing", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return h.registry.Get(id), true
}

// Get は現在の画面状態を返す。
// GET /api/storefront
func (h *StorefrontHandler) Get(w http.ResponseWriter, r *http.Request) {
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sf.View())
}

// Events は画面状態の変化をServer-Sent Eventsで配信する。
// 接続直後に現在の状態を1件送り、以後は変化のたびに送る。
// GET /api/storefront/events
func (h *StorefrontHandler) Events(w http.ResponseWriter, r *http.Request) {
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	ch := sf.Subscribe()
	defer sf.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, sf.View()); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		slog.Warn("streaming not supported", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case v, open := <-ch:
			if !open {
				return
			}
			if err := writeEvent(w, v); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, v browse.View) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: view\nid: %d\ndata: %s\n\n", v.Version, data)
	return err
}

// SelectTag は追加タグを選択する。tag_idが空なら選択を解除する。
// POST /api/storefront/tag
func (h *StorefrontHandler) SelectTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}

	tagID := strings.TrimSpace(req.TagID)
	if tagID == "" {
		sf.SelectTag(nil)
	} else {
		tag := lookupTag(sf.View().Categories, tagID)
		sf.SelectTag(&tag)
	}
	writeJSON(w, http.StatusOK, sf.View())
}

// lookupTag はサイドバーに表示中のタグから表示名付きのタグを探す。見つからなければIDだけのタグを返す。
func lookupTag(cats []browse.Category, id string) model.Tag {
	for _, c := range cats {
		for _, t := range c.Tags {
			if t.ID == id {
				return t
			}
		}
	}
	return model.Tag{ID: id}
}

// SelectMainTag は主カテゴリを選択する。選択中の値を送ると解除になる。
// POST /api/storefront/main-tag
func (h *StorefrontHandler) SelectMainTag(w http.ResponseWriter, r *http.Request) {
	var req mainTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v := model.MainTag(req.Value)
	if !v.Valid() {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidArgumentError("主カテゴリは Game または Software です"))
		return
	}
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	sf.SelectMainTag(v)
	writeJSON(w, http.StatusOK, sf.View())
}

// SetSearch は検索欄の入力を反映する。確定は入力が止まってから行われる。
// POST /api/storefront/search
func (h *StorefrontHandler) SetSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	sf.SetSearch(req.Text)
	writeJSON(w, http.StatusOK, sf.View())
}

// FlushSearch は確定待ちの検索入力を即時に確定する（検索欄のフォーカス喪失）。
// POST /api/storefront/search/flush
func (h *StorefrontHandler) FlushSearch(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, (*browse.Storefront).FlushSearch)
}

// Sentinel は番兵要素が可視になったことを通知する。
// POST /api/storefront/sentinel
func (h *StorefrontHandler) Sentinel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, (*browse.Storefront).SentinelVisible)
}

// Retry はエラーバナーの再試行。
// POST /api/storefront/retry
func (h *StorefrontHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, (*browse.Storefront).Retry)
}

func (h *StorefrontHandler) action(w http.ResponseWriter, r *http.Request, fn func(*browse.Storefront) bool) {
	sf, ok := h.storefront(w, r)
	if !ok {
		return
	}
	accepted := fn(sf)
	writeJSON(w, http.StatusOK, actionResponse{Accepted: accepted, View: sf.View()})
}
