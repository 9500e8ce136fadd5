package browse

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/gamehub/internal/gateway"
	"github.com/hitoshi/gamehub/internal/model"
)

// DefaultPageSize は1ページあたりの取得件数。
const DefaultPageSize = 20

// Recorder は読み込みのメトリクスを記録する。
type Recorder interface {
	RecordPageLoad(kind string, outcome string, duration time.Duration)
	RecordStaleDiscard(kind string)
	RecordDuplicateRequest(kind string)
}

// Banner は画面上部に表示するエラーバナー。再試行ボタンを伴う。
type Banner struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// pageRequest は発行済みの取得要求。世代とトークンで古い応答を判定する。
type pageRequest struct {
	filter     FilterContext
	page       int
	append     bool
	generation uint64
	token      uint64
}

// Snapshot は Coordinator の状態の写し。
type Snapshot struct {
	Filter     FilterContext
	State      LoadState
	Items      []model.Product
	Error      *Banner
	Partial    bool
	Generation uint64
}

// Coordinator はページ取得の発行と結果の反映を担う。
// 取得中フラグは絞り込み条件の世代ごとに持ち、取得中の要求は待ち行列に積まずに捨てる。
type Coordinator struct {
	mu       sync.Mutex
	gw       gateway.Gateway
	logger   *slog.Logger
	recorder Recorder
	pageSize int

	filter     FilterContext
	state      LoadState
	store      Store
	generation uint64
	token      uint64
	inFlight   bool
	banner     *Banner
	failed     *pageRequest

	// all は絞り込みなし一覧の取得結果。主カテゴリの絞り込み元になる。
	all        Store
	allHasMore bool
	allLoaded  bool

	onChange func()
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closed   bool
}

// NewCoordinator はCoordinatorを生成する。onChange は状態が変わるたびにロック外で呼ばれる。
func NewCoordinator(gw gateway.Gateway, pageSize int, logger *slog.Logger, recorder Recorder, onChange func()) *Coordinator {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if onChange == nil {
		onChange = func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		gw:         gw,
		logger:     logger,
		recorder:   recorder,
		pageSize:   pageSize,
		filter:     NoFilter(),
		state:      LoadState{Page: 1, HasMore: true},
		allHasMore: true,
		onChange:   onChange,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Switch は絞り込み条件を切り替える。
// 世代を進めてページ番号と取得中フラグを初期化する。旧世代の応答は到着時に破棄される。
func (c *Coordinator) Switch(fc FilterContext) {
	c.mu.Lock()
	c.generation++
	c.filter = fc
	c.inFlight = false
	c.state = LoadState{Page: 1, HasMore: fc.Paginated()}
	c.banner = nil
	c.failed = nil
	gen := c.generation
	c.mu.Unlock()

	c.logger.Debug("絞り込み条件を切り替えました",
		slog.String("filter", fc.String()),
		slog.Uint64("generation", gen),
	)
	c.onChange()
}

// RequestPage はページの取得を開始する。
// 同じ世代で取得中の場合は何もせずfalseを返す。append=false は商品列を置き換え、trueは末尾に追加する。
// 主カテゴリは絞り込みなし一覧のキャッシュから同期的に反映し、通信しない。
func (c *Coordinator) RequestPage(fc FilterContext, page int, appendItems bool) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if !fc.Equal(c.filter) {
		c.mu.Unlock()
		c.logger.Warn("現在の絞り込み条件と異なる取得要求を無視しました",
			slog.String("filter", fc.String()),
		)
		return false
	}

	if fc.Kind == KindMainTag {
		c.applyMainTagLocked(fc.MainTag)
		c.mu.Unlock()
		c.onChange()
		return true
	}

	if c.inFlight {
		c.mu.Unlock()
		c.logger.Debug("取得中のためスキップしました",
			slog.String("filter", fc.String()),
			slog.Int("page", page),
		)
		if c.recorder != nil {
			c.recorder.RecordDuplicateRequest(fc.Kind.String())
		}
		return false
	}

	c.inFlight = true
	c.token++
	if appendItems {
		c.state.LoadingMore = true
	} else {
		c.state.Loading = true
	}
	c.banner = nil
	req := pageRequest{
		filter:     fc,
		page:       page,
		append:     appendItems,
		generation: c.generation,
		token:      c.token,
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.onChange()
	go c.run(req)
	return true
}

// Retry は直前に失敗した取得をやり直す。失敗が無い場合は現在の条件の1ページ目を取り直す。
func (c *Coordinator) Retry() bool {
	c.mu.Lock()
	fc := c.filter
	failed := c.failed
	c.mu.Unlock()

	if failed != nil && failed.filter.Equal(fc) {
		return c.RequestPage(fc, failed.page, failed.append)
	}
	return c.RequestPage(fc, 1, false)
}

func (c *Coordinator) run(req pageRequest) {
	defer c.wg.Done()

	start := time.Now()
	result, err := c.fetch(c.ctx, req)
	c.complete(req, result, err, time.Since(start))
}

func (c *Coordinator) fetch(ctx context.Context, req pageRequest) (*model.PageResult, error) {
	switch req.filter.Kind {
	case KindTag:
		return c.gw.ListByTag(ctx, req.filter.Tag.ID, req.page, c.pageSize)
	case KindSearch:
		return c.gw.Search(ctx, req.filter.Query, req.page, c.pageSize)
	default:
		return c.gw.ListAll(ctx, req.page, c.pageSize)
	}
}

func (c *Coordinator) complete(req pageRequest, result *model.PageResult, err error, elapsed time.Duration) {
	kind := req.filter.Kind.String()

	c.mu.Lock()
	if req.generation != c.generation || req.token != c.token {
		c.mu.Unlock()
		c.logger.Debug("古い取得結果を破棄しました",
			slog.String("filter", req.filter.String()),
			slog.Uint64("generation", req.generation),
			slog.Uint64("token", req.token),
		)
		if c.recorder != nil {
			c.recorder.RecordStaleDiscard(kind)
		}
		return
	}

	c.inFlight = false
	c.state.Loading = false
	c.state.LoadingMore = false

	if err != nil {
		c.banner = bannerFor(req.filter, err)
		failed := req
		c.failed = &failed
		c.mu.Unlock()

		c.logger.Error("商品の取得に失敗しました",
			slog.String("filter", req.filter.String()),
			slog.Int("page", req.page),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
		if c.recorder != nil {
			c.recorder.RecordPageLoad(kind, "error", elapsed)
		}
		c.onChange()
		return
	}

	c.failed = nil
	items := result.Items
	hasMore := len(items) >= c.pageSize
	if req.append {
		c.store.Append(items)
	} else {
		c.store.Replace(items)
	}
	if req.filter.Kind == KindNone {
		if req.append {
			c.all.Append(items)
		} else {
			c.all.Replace(items)
		}
		c.allHasMore = hasMore
		c.allLoaded = true
	}
	c.state.HasMore = hasMore
	c.state.Page = result.Page
	if c.state.Page < 1 {
		c.state.Page = req.page
	}
	c.mu.Unlock()

	c.logger.Debug("商品を取得しました",
		slog.String("filter", req.filter.String()),
		slog.Int("page", req.page),
		slog.Int("count", len(items)),
		slog.Bool("has_more", hasMore),
	)
	if c.recorder != nil {
		c.recorder.RecordPageLoad(kind, "ok", elapsed)
	}
	c.onChange()
}

// applyMainTagLocked は絞り込みなし一覧のキャッシュから主カテゴリの商品を抜き出す。
// キャッシュは読み込み済みのページ分しか無いため、未取得のページにある商品は表示されない。
func (c *Coordinator) applyMainTagLocked(v model.MainTag) {
	filtered := make([]model.Product, 0, c.all.Len())
	for _, p := range c.all.items {
		if p.MainTag == v {
			filtered = append(filtered, p)
		}
	}
	c.store.Replace(filtered)
	c.state = LoadState{Page: 1, HasMore: false}
	if c.allHasMore {
		c.logger.Warn("主カテゴリの絞り込みは読み込み済みの商品のみが対象です",
			slog.String("main_tag", string(v)),
			slog.Int("cached", c.all.Len()),
		)
	}
}

// Snapshot は現在の状態の写しを返す。
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var banner *Banner
	if c.banner != nil {
		b := *c.banner
		banner = &b
	}
	return Snapshot{
		Filter:     c.filter,
		State:      c.state,
		Items:      c.store.Items(),
		Error:      banner,
		Partial:    c.filter.Kind == KindMainTag && c.allHasMore,
		Generation: c.generation,
	}
}

// CachedAll は絞り込みなし一覧のキャッシュを返す。未取得の場合は ok=false。
func (c *Coordinator) CachedAll() ([]model.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.all.Items(), c.allLoaded
}

// Find は表示中またはキャッシュ済みの商品をIDで探す。
func (c *Coordinator) Find(id string) (model.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.store.Find(id); ok {
		return p, true
	}
	return c.all.Find(id)
}

// Wait は発行済みの取得が全て終わるまで待つ。
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close は進行中の取得をキャンセルし、以降の要求を受け付けない。
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.generation++
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// bannerFor は取得失敗をバナー表示用に変換する。
func bannerFor(fc FilterContext, err error) *Banner {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return &Banner{Code: apiErr.Code, Message: apiErr.Message, Action: apiErr.Action}
	}
	fallback := model.NewServerError(fc.endpoint(), err)
	return &Banner{Code: fallback.Code, Message: fallback.Message, Action: fallback.Action}
}

// coordinatorStatus は継続読み込みの判定に必要な状態。
type coordinatorStatus struct {
	filter  FilterContext
	page    int
	hasMore bool
	busy    bool
	loaded  int
}

// status は商品列をコピーせずに判定用の状態を返す。
func (c *Coordinator) status() coordinatorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return coordinatorStatus{
		filter:  c.filter,
		page:    c.state.Page,
		hasMore: c.state.HasMore,
		busy:    c.state.Busy(),
		loaded:  c.store.Len(),
	}
}
