package browse

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/gamehub/internal/gateway"
	"github.com/hitoshi/gamehub/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// --- scriptedGateway: 呼び出しごとに応答をテスト側から返すゲートウェイ ---

type reply struct {
	result *model.PageResult
	err    error
}

type call struct {
	kind  string // all, tag, search
	arg   string
	page  int
	reply chan reply
}

// respond は商品 n 件のページを返す。
func (c *call) respond(prefix string, n int) {
	c.reply <- reply{result: &model.PageResult{Items: products(prefix, n), Page: c.page}}
}

func (c *call) fail(err error) {
	c.reply <- reply{err: err}
}

type scriptedGateway struct {
	calls chan *call
	count atomic.Int64
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{calls: make(chan *call, 16)}
}

func (g *scriptedGateway) wait(ctx context.Context, c *call) (*model.PageResult, error) {
	g.count.Add(1)
	g.calls <- c
	select {
	case r := <-c.reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, model.NewNetworkError(model.EndpointList, ctx.Err())
	}
}

func (g *scriptedGateway) ListAll(ctx context.Context, page, pageSize int) (*model.PageResult, error) {
	return g.wait(ctx, &call{kind: "all", page: page, reply: make(chan reply, 1)})
}

func (g *scriptedGateway) ListByTag(ctx context.Context, tagID string, page, pageSize int) (*model.PageResult, error) {
	return g.wait(ctx, &call{kind: "tag", arg: tagID, page: page, reply: make(chan reply, 1)})
}

func (g *scriptedGateway) Search(ctx context.Context, query string, page, pageSize int) (*model.PageResult, error) {
	return g.wait(ctx, &call{kind: "search", arg: query, page: page, reply: make(chan reply, 1)})
}

func (g *scriptedGateway) ListTags(ctx context.Context) ([]model.Tag, error) {
	return nil, nil
}

func (g *scriptedGateway) FetchDownloadHandle(ctx context.Context, productID string) (*gateway.DownloadHandle, error) {
	return nil, model.NewUnauthenticatedError()
}

// next は次の呼び出しを待って返す。
func (g *scriptedGateway) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("ゲートウェイ呼び出しがタイムアウトした")
		return nil
	}
}

// expectNoCall は呼び出しが無いことを確認する。
func (g *scriptedGateway) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-g.calls:
		t.Fatalf("想定外のゲートウェイ呼び出し: %s(%s) page=%d", c.kind, c.arg, c.page)
	case <-time.After(20 * time.Millisecond):
	}
}

func products(prefix string, n int) []model.Product {
	items := make([]model.Product, n)
	for i := range items {
		items[i] = model.Product{
			ID:    fmt.Sprintf("%s-%d", prefix, i),
			Title: fmt.Sprintf("%s %d", prefix, i),
		}
	}
	return items
}

// waitUntil は条件が満たされるまで待つ。
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("条件が満たされなかった")
}

// --- fakeRecorder ---

type fakeRecorder struct {
	loads      atomic.Int64
	stale      atomic.Int64
	duplicates atomic.Int64
}

func (f *fakeRecorder) RecordPageLoad(kind, outcome string, d time.Duration) { f.loads.Add(1) }
func (f *fakeRecorder) RecordStaleDiscard(kind string)                      { f.stale.Add(1) }
func (f *fakeRecorder) RecordDuplicateRequest(kind string)                  { f.duplicates.Add(1) }

// --- fakeClock: デバウンスのタイマーを手動で進める ---

type fakeTimer struct {
	due     time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{due: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return &fakeTimerHandle{clock: c, timer: t}
}

type fakeTimerHandle struct {
	clock *fakeClock
	timer *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	active := !h.timer.stopped && !h.timer.fired
	h.timer.stopped = true
	return active
}

// Advance は時計を d 進め、期限を迎えたタイマーを期限順に発火する。
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.due <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].due < due[j].due })
	for _, t := range due {
		t.f()
	}
}

// active は未発火のタイマー数を返す。
func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
