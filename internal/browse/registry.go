package browse

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultIdleTTL は購読者のいない画面状態を破棄するまでの時間。
const DefaultIdleTTL = 30 * time.Minute

// Registry はブラウザごとの Storefront を保持する。
// 一定時間使われず購読者もいない Storefront はバックグラウンドで破棄する。
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Storefront
	factory func() *Storefront
	idleTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
	// observe は保持数が変わるたびに呼ばれる。
	observe func(n int)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry はRegistryを生成する。cleanupInterval が正の場合はバックグラウンドで掃除を始める。
func NewRegistry(factory func() *Storefront, idleTTL, cleanupInterval time.Duration, logger *slog.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	r := &Registry{
		entries: make(map[string]*Storefront),
		factory: factory,
		idleTTL: idleTTL,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go r.cleanupLoop(cleanupInterval)
	}
	return r
}

// ObserveSize は保持しているStorefront数の変化を通知する関数を設定する。
// 生成直後の呼び出しだけを想定する。
func (r *Registry) ObserveSize(fn func(n int)) {
	r.mu.Lock()
	r.observe = fn
	n := len(r.entries)
	r.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (r *Registry) notifySize() {
	r.mu.Lock()
	fn, n := r.observe, len(r.entries)
	r.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// Get はIDに対応するStorefrontを返す。無ければ生成して1ページ目の読み込みを始める。
func (r *Registry) Get(id string) *Storefront {
	r.mu.Lock()
	sf, ok := r.entries[id]
	if !ok {
		sf = r.factory()
		r.entries[id] = sf
	}
	r.mu.Unlock()

	if !ok {
		sf.Start()
		r.notifySize()
	}
	sf.Touch()
	return sf
}

// Lookup は既存のStorefrontだけを返す。
func (r *Registry) Lookup(id string) (*Storefront, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sf, ok := r.entries[id]
	return sf, ok
}

// Remove はStorefrontを破棄する。
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sf, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		sf.Close()
		r.notifySize()
	}
}

// Len は保持数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep は放置されたStorefrontを破棄し、破棄した数を返す。
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Storefront
	for id, sf := range r.entries {
		if sf.Subscribers() == 0 && sf.LastUsed().Before(cutoff) {
			idle = append(idle, sf)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, sf := range idle {
		sf.Close()
	}
	if len(idle) > 0 {
		r.notifySize()
		r.logger.Info("放置された画面状態を破棄しました", slog.Int("count", len(idle)))
	}
	return len(idle)
}

func (r *Registry) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close は掃除を止め、全Storefrontを破棄する。
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Storefront)
	r.mu.Unlock()

	for _, sf := range entries {
		sf.Close()
	}
}
