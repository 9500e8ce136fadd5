package browse

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/gamehub/internal/gateway"
	"github.com/hitoshi/gamehub/internal/model"
)

// Options はStorefrontの生成オプション。ゼロ値の項目は既定値を使う。
type Options struct {
	PageSize         int
	SearchDebounce   time.Duration
	SentinelMarginPx int
	AfterFunc        AfterFunc
	Recorder         Recorder
	// OnDrop は購読者へのイベントを捨てたときに呼ばれる。
	OnDrop func()
}

// Storefront は1つの商品一覧画面の状態をまとめる。
// 選択状態、読み込み、継続読み込みを結び付け、状態が変わるたびに View を配信する。
type Storefront struct {
	coord  *Coordinator
	sel    *Selection
	cont   *Continuation
	events *Broadcaster
	logger *slog.Logger

	// commitMu は絞り込みの切り替えを直列化する。
	commitMu sync.Mutex
	// publishMu は View の生成と配信を直列化し、古い View が後から届かないようにする。
	publishMu sync.Mutex

	version   atomic.Uint64
	lastUsed  atomic.Int64
	closeOnce sync.Once
}

// NewStorefront はStorefrontを生成する。Start を呼ぶまで通信しない。
func NewStorefront(gw gateway.Gateway, logger *slog.Logger, opts Options) *Storefront {
	delay := opts.SearchDebounce
	if delay <= 0 {
		delay = DefaultSearchDebounce
	}

	s := &Storefront{logger: logger}
	s.events = NewBroadcaster(opts.OnDrop)
	s.coord = NewCoordinator(gw, opts.PageSize, logger, opts.Recorder, s.changed)
	s.sel = NewSelection(NewDebouncer(delay, opts.AfterFunc), s.commit)
	s.sel.OnSettle(s.changed)
	s.cont = NewContinuation(opts.SentinelMarginPx, s.canContinue, s.loadNext)
	s.Touch()
	return s
}

// Start は絞り込みなしの1ページ目を読み込む。
func (s *Storefront) Start() {
	s.commit(s.sel.Active())
}

// SelectTag は追加タグを選択する。nil で解除する。
func (s *Storefront) SelectTag(t *model.Tag) {
	s.Touch()
	s.sel.SelectTag(t)
}

// SelectMainTag は主カテゴリを選択する。選択中の値なら解除する。
func (s *Storefront) SelectMainTag(v model.MainTag) {
	s.Touch()
	s.sel.SelectMainTag(v)
}

// SetSearch は検索欄の入力を反映する。
func (s *Storefront) SetSearch(text string) {
	s.Touch()
	s.sel.SetSearch(text)
	s.changed()
}

// FlushSearch は確定待ちの検索入力を即時に確定する。
func (s *Storefront) FlushSearch() bool {
	s.Touch()
	return s.sel.FlushSearch()
}

// SentinelVisible は番兵要素が可視になったことを通知する。
func (s *Storefront) SentinelVisible() bool {
	s.Touch()
	return s.cont.Visible()
}

// Retry はエラーバナーの再試行。
func (s *Storefront) Retry() bool {
	s.Touch()
	return s.coord.Retry()
}

// Continuation は番兵要素の待ち受けを返す。
func (s *Storefront) Continuation() *Continuation {
	return s.cont
}

// Product は読み込み済みの商品をIDで探す。
func (s *Storefront) Product(id string) (model.Product, bool) {
	return s.coord.Find(id)
}

// Subscribe はViewの変化の購読を開始する。
func (s *Storefront) Subscribe() chan View {
	s.Touch()
	return s.events.Subscribe()
}

// Unsubscribe は購読を解除する。
func (s *Storefront) Unsubscribe(ch chan View) {
	s.events.Unsubscribe(ch)
}

// Subscribers は購読者数を返す。
func (s *Storefront) Subscribers() int {
	return s.events.Count()
}

// Wait は発行済みの取得が全て終わるまで待つ。
func (s *Storefront) Wait() {
	s.coord.Wait()
}

// Touch は最終利用時刻を更新する。
func (s *Storefront) Touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed は最終利用時刻を返す。
func (s *Storefront) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// View は現在の画面状態を返す。
func (s *Storefront) View() View {
	snap := s.coord.Snapshot()
	sel := s.sel.Snapshot()

	source, loaded := s.coord.CachedAll()
	if !loaded {
		source = snap.Items
	}
	cats := Categories(source)
	markExpanded(cats, sel.MainTag, sel.Tag)
	cats = FilterCategories(cats, sel.SearchText)

	return View{
		Version:       s.version.Load(),
		Title:         titleFor(snap.Filter),
		Filter:        filterView(snap.Filter),
		Products:      snap.Items,
		Count:         len(snap.Items),
		Page:          snap.State.Page,
		HasMore:       snap.State.HasMore,
		Loading:       snap.State.Loading,
		LoadingMore:   snap.State.LoadingMore,
		Error:         snap.Error,
		Partial:       snap.Partial,
		SearchText:    sel.SearchText,
		SearchPending: sel.Pending,
		Categories:    cats,
		Sentinel: SentinelView{
			Armed:    s.cont.Armed(),
			MarginPx: s.cont.MarginPx(),
		},
	}
}

// Close は確定待ちの入力と待ち受けを破棄し、進行中の取得の結果を捨てる。
func (s *Storefront) Close() {
	s.closeOnce.Do(func() {
		s.sel.Close()
		s.cont.Close()
		s.coord.Close()
		s.events.Close()
	})
}

// commit は確定した絞り込み条件に切り替えて1ページ目を要求する。
// 選択の更新と切り替えの順序が入れ替わっても最後の選択に揃うよう、ロック内で条件を読み直す。
func (s *Storefront) commit(FilterContext) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	fc := s.sel.Active()
	s.coord.Switch(fc)
	s.coord.RequestPage(fc, 1, false)
}

// canContinue は継続読み込みを待ち受けてよいかを判定する。
// 番兵要素は末尾の商品の後ろに置くため、1件も表示していないときは待ち受けない。
// 継続取得の失敗後は同じページを次の可視通知で取り直す。
func (s *Storefront) canContinue() bool {
	st := s.coord.status()
	if st.busy || !st.hasMore || st.loaded == 0 || !st.filter.Paginated() {
		return false
	}
	return !s.sel.Pending()
}

func (s *Storefront) loadNext() {
	st := s.coord.status()
	s.coord.RequestPage(st.filter, st.page+1, true)
}

// changed は状態変化のたびに呼ばれ、待ち受けを作り直して View を配信する。
func (s *Storefront) changed() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.cont.Refresh()
	s.version.Add(1)
	if s.events.Count() > 0 {
		s.events.Publish(s.View())
	}
}
