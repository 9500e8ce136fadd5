package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/gamehub/internal/browse"
	"github.com/hitoshi/gamehub/internal/model"
)

func decodeView(t *testing.T, w *httptest.ResponseRecorder) browse.View {
	t.Helper()
	var v browse.View
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode view: %v; body=%s", err, w.Body.String())
	}
	return v
}

func hasCall(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}

func TestStorefrontHandler_Get_ReturnsFirstPage(t *testing.T) {
	gw := &fakeGateway{}
	reg := newTestRegistry(t, gw)
	id := warmStorefront(reg)
	h := NewStorefrontHandler(reg)

	w := httptest.NewRecorder()
	h.Get(w, withStorefront(httptest.NewRequest(http.MethodGet, "/api/storefront", nil), id))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	v := decodeView(t, w)
	if v.Count != 2 || v.Filter.Kind != "none" || !v.HasMore {
		t.Errorf("view = count %d kind %q hasMore %v", v.Count, v.Filter.Kind, v.HasMore)
	}
	if v.Title != "すべての商品" {
		t.Errorf("title = %q", v.Title)
	}
}

func TestStorefrontHandler_MissingStorefrontID_Returns500(t *testing.T) {
	h := NewStorefrontHandler(newTestRegistry(t, &fakeGateway{}))

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/storefront", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestStorefrontHandler_SelectTag_UsesSidebarName(t *testing.T) {
	gw := &fakeGateway{}
	reg := newTestRegistry(t, gw)
	id := warmStorefront(reg)
	h := NewStorefrontHandler(reg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/storefront/tag", strings.NewReader(`{"tag_id":"t-rpg"}`))
	h.SelectTag(w, withStorefront(req, id))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	reg.Get(id).Wait()

	if !hasCall(gw.Calls(), "tag:t-rpg:1") {
		t.Errorf("タグ絞り込みの1ページ目が要求されていない: %v", gw.Calls())
	}
	v := reg.Get(id).View()
	if v.Filter.Kind != "tag" || v.Filter.TagName != "RPG" {
		t.Errorf("filter = %+v, want tag RPG", v.Filter)
	}
}

func TestStorefrontHandler_SelectTag_EmptyClearsSelection(t *testing.T) {
	gw := &fakeGateway{}
	reg := newTestRegistry(t, gw)
	id := warmStorefront(reg)
	h := NewStorefrontHandler(reg)

	h.SelectTag(httptest.NewRecorder(), withStorefront(
		httptest.NewRequest(http.MethodPost, "/api/storefront/tag", strings.NewReader(`{"tag_id":"t-rpg"}`)), id))
	reg.Get(id).Wait()

	h.SelectTag(httptest.NewRecorder(), withStorefront(
		httptest.NewRequest(http.MethodPost, "/api/storefront/tag", strings.NewReader(`{}`)), id))
	reg.Get(id).Wait()

	if v := reg.Get(id).View(); v.Filter.Kind != "none" {
		t.Errorf("filter kind = %q, want none", v.Filter.Kind)
	}
}

func TestStorefrontHandler_SelectMainTag(t *testing.T) {
	gw := &fakeGateway{}
	reg := newTestRegistry(t, gw)
	id := warmStorefront(reg)
	h := NewStorefrontHandler(reg)

	w := httptest.NewRecorder()
	h.SelectMainTag(w, withStorefront(
		httptest.NewRequest(http.MethodPost, "/api/storefront/main-tag", strings.NewReader(`{"value":"Board"}`)), id))
	if w.Code != http.StatusBadRequest {
		t.Errorf("未知の主カテゴリは400: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.SelectMainTag(w, withStorefront(
		httptest.NewRequest(http.MethodPost, "/api/storefront/main-tag", strings.NewReader(`{"value":"Game"}`)), id))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	reg.Get(id).Wait()

	v := reg.Get(id).View()
	if v.Filter.Kind != "main_tag" || v.Filter.MainTag != string(model.MainTagGame) {
		t.Errorf("filter = %+v", v.Filter)
	}
	if !v.Partial {
		t.Error("未読み込みのページがあるので Partial になるべき")
	}
}

func TestStorefrontHandler_SearchAndFlush(t *testing.T) {
	gw := &fakeGateway{}
	reg := newTestRegistry(t, gw)
	id := warmStorefront(reg)
	h := NewStorefrontHandler(reg)

	w := httptest.NewRecorder()
	h.SetSearch(w, withStorefront(
		httptest.NewRequest(http.MethodPost, "/api/storefront/search", strings.NewReader(`{"text":"zelda"}`)), id))
	v := decodeView(t, w)
	if !v.SearchPending || v.SearchText != "zelda" {
		t.Errorf("search pending = %v text = %q", v.SearchPending, v.SearchText)
	}
	if hasCall(gw.Calls(), "search:zelda:1") {
		t.Fatal("確定前に検索してはいけない")
	}

	w = httptest.NewRecorder()
	h.FlushSearch(w, withStorefront(httptest.NewRequest(http.MethodPost, "/api/storefront/search/flush", nil), id))
	var resp actionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.Accepted {
		t.Error("確定待ちの入力があるので受理されるべき")
	}
	reg.Get(id).Wait()

	if !hasCall(gw.Calls(), "search:zelda:1") {
		t.Errorf("検索が要求されていない: %v", gw.Calls())
	}
}

func TestStorefrontHandler_Sentinel_LoadsNextPage(t *testing.T) {
	gw := &fakeGateway{}
	reg := newTestRegistry(t, gw)
	id := warmStorefront(reg)
	h := NewStorefrontHandler(reg)

	w := httptest.NewRecorder()
	h.Sentinel(w, withStorefront(httptest.NewRequest(http.MethodPost, "/api/storefront/sentinel", nil), id))

	var resp actionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.Accepted {
		t.Fatal("番兵が待ち受け中なので受理されるべき")
	}
	reg.Get(id).Wait()

	if v := reg.Get(id).View(); v.Count != 4 || v.Page != 2 {
		t.Errorf("count = %d page = %d, want 4 2", v.Count, v.Page)
	}
}

func TestStorefrontHandler_Retry_AfterFailure(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	gw := &fakeGateway{}
	gw.listAllFn = func(page int) (*model.PageResult, error) {
		if failing.Load() {
			return nil, model.NewServerError(model.EndpointList, nil)
		}
		return &model.PageResult{Items: catalogPage(page, 2), Page: page}, nil
	}
	reg := newTestRegistry(t, gw)
	id := warmStorefront(reg)
	h := NewStorefrontHandler(reg)

	if v := reg.Get(id).View(); v.Error == nil || v.Error.Code != model.ErrCodeServer {
		t.Fatalf("エラーバナーが表示されるべき: %+v", v.Error)
	}

	failing.Store(false)
	w := httptest.NewRecorder()
	h.Retry(w, withStorefront(httptest.NewRequest(http.MethodPost, "/api/storefront/retry", nil), id))
	reg.Get(id).Wait()

	v := reg.Get(id).View()
	if v.Error != nil || v.Count != 2 {
		t.Errorf("error = %+v count = %d", v.Error, v.Count)
	}
}

func TestStorefrontHandler_Events_SendsInitialView(t *testing.T) {
	reg := newTestRegistry(t, &fakeGateway{})
	id := warmStorefront(reg)
	h := NewStorefrontHandler(reg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := withStorefront(httptest.NewRequest(http.MethodGet, "/api/storefront/events", nil).WithContext(ctx), id)
	w := httptest.NewRecorder()

	h.Events(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "event: view\n") || !strings.Contains(body, "data: {") {
		t.Errorf("SSEの初期イベントが無い: %q", body)
	}
	if reg.Get(id).Subscribers() != 0 {
		t.Error("切断後は購読を解除するべき")
	}
}

func TestStorefrontHandler_Events_StreamsChanges(t *testing.T) {
	reg := newTestRegistry(t, &fakeGateway{})
	id := warmStorefront(reg)
	h := NewStorefrontHandler(reg)
	sf := reg.Get(id)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := withStorefront(httptest.NewRequest(http.MethodGet, "/api/storefront/events", nil).WithContext(ctx), id)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Events(w, req)
	}()

	// 購読が始まるのを待ってから状態を変える
	deadline := time.Now().Add(time.Second)
	for sf.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	sf.SetSearch("mario")
	<-done

	if n := strings.Count(w.Body.String(), "event: view\n"); n < 2 {
		t.Errorf("状態変化が配信されていない: events = %d", n)
	}
}
