package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/gamehub/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// fakeCredentials はテスト用のログイン状態。
type fakeCredentials struct {
	token      string
	subscribed bool
	cleared    bool
}

func (f *fakeCredentials) AccessToken() string   { return f.token }
func (f *fakeCredentials) IsAuthenticated() bool { return f.token != "" }
func (f *fakeCredentials) IsSubscribed() bool    { return f.subscribed }
func (f *fakeCredentials) Clear()                { f.token = ""; f.cleared = true }

// fakeRecorder は記録呼び出しを数える。
type fakeRecorder struct {
	requests atomic.Int64
	states   []float64
}

func (f *fakeRecorder) RecordUpstreamRequest(endpoint string, statusCode int, d time.Duration) {
	f.requests.Add(1)
}

func (f *fakeRecorder) SetBreakerState(name string, state float64) {
	f.states = append(f.states, state)
}

func newTestClient(t *testing.T, server *httptest.Server, opts Options) (*Client, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts.BaseURL = server.URL
	return NewClient(server.Client(), newTestLogger(&buf), opts), &buf
}

func TestClient_ListAll_DecodesPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathListAll {
			t.Errorf("パス = %s, want %s", r.URL.Path, pathListAll)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("page = %s, want 2", got)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %s, want 20", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"data":[{"_id":"p1","title":"Alpha","mainTag":"Game"},{"id":"p2","title":"Beta"}],"currentPage":2}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Options{})
	result, err := c.ListAll(context.Background(), 2, 20)
	if err != nil {
		t.Fatalf("ListAll がエラーを返した: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("件数 = %d, want 2", len(result.Items))
	}
	if result.Page != 2 {
		t.Errorf("Page = %d, want 2", result.Page)
	}
	if result.Items[0].CanonicalID() != "p1" || result.Items[1].CanonicalID() != "p2" {
		t.Errorf("ID = %s,%s, want p1,p2", result.Items[0].CanonicalID(), result.Items[1].CanonicalID())
	}
	if result.Items[0].MainTag != model.MainTagGame {
		t.Errorf("MainTag = %s, want Game", result.Items[0].MainTag)
	}
}

func TestClient_ListByTag_SendsTagID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathListByTag {
			t.Errorf("パス = %s, want %s", r.URL.Path, pathListByTag)
		}
		if got := r.URL.Query().Get("additionalTag"); got != "rpg" {
			t.Errorf("additionalTag = %s, want rpg", got)
		}
		io.WriteString(w, `{"success":true,"data":[]}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Options{})
	result, err := c.ListByTag(context.Background(), "rpg", 1, 20)
	if err != nil {
		t.Fatalf("ListByTag がエラーを返した: %v", err)
	}
	if len(result.Items) != 0 {
		t.Errorf("件数 = %d, want 0", len(result.Items))
	}
	if result.Page != 1 {
		t.Errorf("ページ番号が無い場合は要求ページを返すべき: got %d", result.Page)
	}
}

func TestClient_InvalidArguments_DoNotCallNetwork(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Options{})
	ctx := context.Background()

	if _, err := c.ListByTag(ctx, "", 1, 20); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("空タグID: err = %v, want InvalidArgument", err)
	}
	if _, err := c.Search(ctx, "   ", 1, 20); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("空白検索語: err = %v, want InvalidArgument", err)
	}
	if _, err := c.ListAll(ctx, 0, 20); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("ページ0: err = %v, want InvalidArgument", err)
	}
	if calls.Load() != 0 {
		t.Errorf("通信回数 = %d, want 0", calls.Load())
	}
}

func TestClient_Search_TrimsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "zelda" {
			t.Errorf("q = %q, want zelda", got)
		}
		io.WriteString(w, `{"items":[{"_id":"z","title":"Zelda"}],"page":1}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Options{})
	result, err := c.Search(context.Background(), "  zelda ", 1, 20)
	if err != nil {
		t.Fatalf("Search がエラーを返した: %v", err)
	}
	if len(result.Items) != 1 {
		t.Errorf("件数 = %d, want 1", len(result.Items))
	}
}

func TestClient_Non2xx_ReturnsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c, buf := newTestClient(t, server, Options{})
	_, err := c.ListAll(context.Background(), 1, 20)
	if !errors.Is(err, model.ErrServer) {
		t.Fatalf("err = %v, want ServerError", err)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "商品の読み込みに失敗しました。" {
		t.Errorf("一覧のエラーメッセージが不正: %v", err)
	}
	if !strings.Contains(buf.String(), "上流APIがエラーステータスを返しました") {
		t.Errorf("エラーステータスのログが出力されていない: %s", buf.String())
	}
}

func TestClient_5xx_ReturnsServerErrorPerEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Options{})
	_, err := c.Search(context.Background(), "x", 1, 20)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeServer {
		t.Fatalf("err = %v, want ServerError", err)
	}
	if apiErr.Message != "検索結果の読み込みに失敗しました。" {
		t.Errorf("検索のエラーメッセージ = %s", apiErr.Message)
	}
}

func TestClient_Undecodable_ReturnsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>not json</html>`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Options{})
	if _, err := c.ListAll(context.Background(), 1, 20); !errors.Is(err, model.ErrServer) {
		t.Errorf("err = %v, want ServerError", err)
	}
}

func TestClient_TransportFailure_ReturnsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c, _ := newTestClient(t, server, Options{})
	server.Close()

	if _, err := c.ListAll(context.Background(), 1, 20); !errors.Is(err, model.ErrNetwork) {
		t.Errorf("err = %v, want NetworkError", err)
	}
}

func TestClient_BreakerOpens_ReturnsNetworkError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := &fakeRecorder{}
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	c, _ := newTestClient(t, server, Options{Breaker: cfg, Recorder: rec})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.ListAll(ctx, 1, 20); !errors.Is(err, model.ErrServer) {
			t.Fatalf("%d回目: err = %v, want ServerError", i+1, err)
		}
	}
	_, err := c.ListAll(ctx, 1, 20)
	if !errors.Is(err, model.ErrNetwork) {
		t.Fatalf("ブレーカーopen後: err = %v, want NetworkError", err)
	}
	if calls.Load() != 2 {
		t.Errorf("上流への到達回数 = %d, want 2", calls.Load())
	}
	if got := rec.states[len(rec.states)-1]; got != 2 {
		t.Errorf("ブレーカー状態 = %v, want 2 (open)", got)
	}
}

func TestClient_401_ClearsCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Options{})
	creds := &fakeCredentials{token: "tok"}
	if _, err := c.WithCredentials(creds).ListAll(context.Background(), 1, 20); !errors.Is(err, model.ErrServer) {
		t.Errorf("err = %v, want ServerError", err)
	}
	if !creds.cleared {
		t.Error("401応答でトークンが破棄されていない")
	}
}

func TestClient_ListTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathTags {
			t.Errorf("パス = %s, want %s", r.URL.Path, pathTags)
		}
		io.WriteString(w, `{"success":true,"data":[{"_id":"t1","name":"RPG"},{"_id":"t2","title":"Puzzle"}]}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Options{})
	tags, err := c.ListTags(context.Background())
	if err != nil {
		t.Fatalf("ListTags がエラーを返した: %v", err)
	}
	if len(tags) != 2 || tags[1].DisplayName() != "Puzzle" {
		t.Errorf("tags = %+v", tags)
	}
}

func TestClient_RateLimiter_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[]}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Options{RatePerSecond: 0.001, Burst: 1})
	if _, err := c.ListAll(context.Background(), 1, 20); err != nil {
		t.Fatalf("1回目はバースト内で成功すべき: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.ListAll(ctx, 1, 20); !errors.Is(err, model.ErrNetwork) {
		t.Errorf("レート超過で待機中にキャンセル: err = %v, want NetworkError", err)
	}
}
