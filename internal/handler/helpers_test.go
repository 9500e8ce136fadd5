package handler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/gamehub/internal/browse"
	"github.com/hitoshi/gamehub/internal/download"
	"github.com/hitoshi/gamehub/internal/gateway"
	"github.com/hitoshi/gamehub/internal/middleware"
	"github.com/hitoshi/gamehub/internal/model"
)

// --- インターフェース適合チェック ---

var (
	_ StorefrontRegistry       = (*browse.Registry)(nil)
	_ DownloadServiceInterface = (*download.Service)(nil)
	_ CredentialsProvider      = (*AuthCredentialsAdapter)(nil)
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// --- fakeGateway: 即座に応答するゲートウェイ ---

type fakeGateway struct {
	mu        sync.Mutex
	calls     []string
	listAllFn func(page int) (*model.PageResult, error)
	byTagFn   func(tagID string, page int) (*model.PageResult, error)
	searchFn  func(query string, page int) (*model.PageResult, error)
	tagsFn    func() ([]model.Tag, error)
}

func (g *fakeGateway) record(s string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, s)
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) ListAll(ctx context.Context, page, pageSize int) (*model.PageResult, error) {
	g.record(fmt.Sprintf("all:%d", page))
	if g.listAllFn != nil {
		return g.listAllFn(page)
	}
	return &model.PageResult{Items: catalogPage(page, pageSize), Page: page}, nil
}

func (g *fakeGateway) ListByTag(ctx context.Context, tagID string, page, pageSize int) (*model.PageResult, error) {
	g.record(fmt.Sprintf("tag:%s:%d", tagID, page))
	if g.byTagFn != nil {
		return g.byTagFn(tagID, page)
	}
	return &model.PageResult{Items: catalogPage(page, 1), Page: page}, nil
}

func (g *fakeGateway) Search(ctx context.Context, query string, page, pageSize int) (*model.PageResult, error) {
	g.record(fmt.Sprintf("search:%s:%d", query, page))
	if g.searchFn != nil {
		return g.searchFn(query, page)
	}
	return &model.PageResult{Items: nil, Page: page}, nil
}

func (g *fakeGateway) ListTags(ctx context.Context) ([]model.Tag, error) {
	if g.tagsFn != nil {
		return g.tagsFn()
	}
	return nil, nil
}

func (g *fakeGateway) FetchDownloadHandle(ctx context.Context, productID string) (*gateway.DownloadHandle, error) {
	return nil, model.NewUnauthenticatedError()
}

// catalogPage はページ番号からIDが決まる商品を n 件返す。
func catalogPage(page, n int) []model.Product {
	items := make([]model.Product, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%d-%d", page, i)
		items = append(items, model.Product{
			ID:          id,
			Title:       "Game " + id,
			Description: "<p>Fun <strong>game</strong></p><script>alert(1)</script>",
			MainTag:     model.MainTagGame,
			AdditionalTags: []model.Tag{
				{ID: "t-rpg", Name: "RPG"},
			},
			ImageURL:    "/media/" + id + ".png",
			GameImages:  []string{"javascript:alert(1)", "https://cdn.example.com/" + id + "-2.png"},
			YoutubeLink: "http://youtu.be/abc",
		})
	}
	return items
}

// newTestRegistry はページサイズ2のStorefrontを生成するRegistryを返す。
func newTestRegistry(t *testing.T, gw gateway.Gateway) *browse.Registry {
	t.Helper()
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	reg := browse.NewRegistry(func() *browse.Storefront {
		return browse.NewStorefront(gw, logger, browse.Options{
			PageSize:       2,
			SearchDebounce: time.Hour,
		})
	}, time.Hour, 0, logger)
	t.Cleanup(reg.Close)
	return reg
}

// warmStorefront は画面状態を生成して1ページ目の読み込み完了を待ち、そのIDを返す。
func warmStorefront(reg *browse.Registry) string {
	id := uuid.NewString()
	reg.Get(id).Wait()
	return id
}

// withStorefront はStorefrontミドルウェアを通過した状態のリクエストにする。
func withStorefront(r *http.Request, id string) *http.Request {
	return r.WithContext(middleware.ContextWithStorefrontID(r.Context(), id))
}

func withSession(r *http.Request, s *model.Session) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), s))
}

// --- 認証サービスのモック ---

type mockAuthService struct {
	loginFn       func(ctx context.Context, username, password string) (*model.Session, *model.User, error)
	logoutFn      func(ctx context.Context, sessionID string) error
	currentUserFn func(ctx context.Context, session *model.Session) (*model.User, error)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, *model.User, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, session *model.Session) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, session)
	}
	return &model.User{Username: session.Username, IsSubscribed: session.IsSubscribed}, nil
}

// --- ダウンロード関連のモック ---

type mockDownloadService struct {
	prepareFn func(ctx context.Context, creds gateway.Credentials, productID string) (*download.Outcome, error)
	openFn    func(ctx context.Context, outcome *download.Outcome) (*gateway.DownloadStream, error)
}

func (m *mockDownloadService) Prepare(ctx context.Context, creds gateway.Credentials, productID string) (*download.Outcome, error) {
	if m.prepareFn != nil {
		return m.prepareFn(ctx, creds, productID)
	}
	return &download.Outcome{Kind: model.DownloadPromptLogin, ProductID: productID}, nil
}

func (m *mockDownloadService) Open(ctx context.Context, outcome *download.Outcome) (*gateway.DownloadStream, error) {
	if m.openFn != nil {
		return m.openFn(ctx, outcome)
	}
	return nil, model.NewInvalidArgumentError("not started")
}

type fakeCreds struct {
	authenticated bool
	subscribed    bool
}

func (c *fakeCreds) AccessToken() string   { return "token" }
func (c *fakeCreds) IsAuthenticated() bool { return c.authenticated }
func (c *fakeCreds) IsSubscribed() bool    { return c.subscribed }
func (c *fakeCreds) Clear()                {}

type mockCredentialsProvider struct {
	credentialsFn func(session *model.Session) gateway.Credentials
}

func (m *mockCredentialsProvider) Credentials(session *model.Session) gateway.Credentials {
	if m.credentialsFn != nil {
		return m.credentialsFn(session)
	}
	return &fakeCreds{authenticated: session != nil, subscribed: session != nil && session.IsSubscribed}
}

type mockDownloadHistory struct {
	listFn func(ctx context.Context, username string, limit int) ([]*model.DownloadLog, error)
}

func (m *mockDownloadHistory) ListByUsername(ctx context.Context, username string, limit int) ([]*model.DownloadLog, error) {
	if m.listFn != nil {
		return m.listFn(ctx, username, limit)
	}
	return nil, nil
}
