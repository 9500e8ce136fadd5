package browse

import (
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/gamehub/internal/model"
)

// DefaultSearchDebounce は検索入力を確定するまでの待ち時間。
const DefaultSearchDebounce = 300 * time.Millisecond

// SelectionState は選択状態の写し。
type SelectionState struct {
	Tag           *model.Tag
	MainTag       model.MainTag
	SearchText    string // 入力欄に表示中の文字列
	CommittedText string // デバウンス後に確定した文字列
	Pending       bool   // 確定待ちの入力がある
}

// Selection は追加タグ・主カテゴリ・検索語の選択状態を持ち、有効な絞り込み条件を決める。
// 条件が確定するたびに onCommit がロック外で呼ばれる。
// 確定待ちの入力が条件を変えずに終わった場合は onSettle が呼ばれる。
type Selection struct {
	mu        sync.Mutex
	tag       *model.Tag
	mainTag   model.MainTag
	text      string
	committed string
	// epoch はタグ選択で進み、それ以前に予約された検索確定を無効にする。
	epoch     uint64
	debouncer *Debouncer
	onCommit  func(FilterContext)
	onSettle  func()
}

// NewSelection はSelectionを生成する。
func NewSelection(debouncer *Debouncer, onCommit func(FilterContext)) *Selection {
	if onCommit == nil {
		onCommit = func(FilterContext) {}
	}
	return &Selection{debouncer: debouncer, onCommit: onCommit, onSettle: func() {}}
}

// OnSettle は確定待ちの入力が絞り込み条件を変えずに終わったときの通知先を登録する。
func (s *Selection) OnSettle(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() {}
	}
	s.onSettle = fn
}

// SelectTag は追加タグを選択する。nil は選択解除。主カテゴリと検索語は解除される。
func (s *Selection) SelectTag(t *model.Tag) {
	s.debouncer.Cancel()

	s.mu.Lock()
	if t != nil {
		tag := *t
		s.tag = &tag
	} else {
		s.tag = nil
	}
	s.mainTag = ""
	s.text = ""
	s.committed = ""
	s.epoch++
	fc := s.activeLocked()
	s.mu.Unlock()

	s.onCommit(fc)
}

// SelectMainTag は主カテゴリを選択する。選択中と同じ値なら解除する。
// 追加タグと検索語は解除される。
func (s *Selection) SelectMainTag(v model.MainTag) {
	s.debouncer.Cancel()

	s.mu.Lock()
	if s.mainTag == v {
		s.mainTag = ""
	} else {
		s.mainTag = v
	}
	s.tag = nil
	s.text = ""
	s.committed = ""
	s.epoch++
	fc := s.activeLocked()
	s.mu.Unlock()

	s.onCommit(fc)
}

// SetSearch は入力欄の文字列を即時に更新し、確定はデバウンス後に行う。
func (s *Selection) SetSearch(text string) {
	s.mu.Lock()
	s.text = text
	epoch := s.epoch
	s.mu.Unlock()

	s.debouncer.Trigger(func() { s.commitSearch(text, epoch) })
}

// FlushSearch は確定待ちの入力を待たずに確定する。入力欄のフォーカスが外れたときに呼ぶ。
func (s *Selection) FlushSearch() bool {
	return s.debouncer.Flush()
}

func (s *Selection) commitSearch(text string, epoch uint64) {
	s.mu.Lock()
	settle := s.onSettle
	if epoch != s.epoch {
		s.mu.Unlock()
		settle()
		return
	}
	if strings.TrimSpace(text) == strings.TrimSpace(s.committed) {
		s.committed = text
		s.mu.Unlock()
		settle()
		return
	}
	s.committed = text
	fc := s.activeLocked()
	s.mu.Unlock()

	s.onCommit(fc)
}

// Active は有効な絞り込み条件を返す。
// 確定済みの検索語があれば検索、なければ主カテゴリ、追加タグ、絞り込みなしの順。
func (s *Selection) Active() FilterContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *Selection) activeLocked() FilterContext {
	if q := strings.TrimSpace(s.committed); q != "" {
		return SearchFilter(q)
	}
	if s.mainTag != "" {
		return MainTagFilter(s.mainTag)
	}
	if s.tag != nil {
		return TagFilter(*s.tag)
	}
	return NoFilter()
}

// Pending は確定待ちの検索入力があるかを返す。
func (s *Selection) Pending() bool {
	return s.debouncer.Pending()
}

// Snapshot は選択状態の写しを返す。
func (s *Selection) Snapshot() SelectionState {
	pending := s.debouncer.Pending()

	s.mu.Lock()
	defer s.mu.Unlock()
	var tag *model.Tag
	if s.tag != nil {
		t := *s.tag
		tag = &t
	}
	return SelectionState{
		Tag:           tag,
		MainTag:       s.mainTag,
		SearchText:    s.text,
		CommittedText: s.committed,
		Pending:       pending,
	}
}

// Close は確定待ちの入力を破棄する。
func (s *Selection) Close() {
	s.debouncer.Cancel()
}
