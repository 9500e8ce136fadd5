package browse

import (
	"context"
	"sync"
)

// DefaultSentinelMarginPx は番兵要素を可視とみなす先読みマージン（px）。
const DefaultSentinelMarginPx = 200

// ArmProbe は継続読み込みを待ち受けてよい状態かを判定する。
type ArmProbe func() bool

// Continuation は一覧末尾の番兵要素が可視になったときに次ページを要求する。
// 待ち受け状態は状態変化の通知ごとに作り直し、取得中や末尾到達時は待ち受けない。
type Continuation struct {
	mu       sync.Mutex
	probe    ArmProbe
	loadNext func()
	marginPx int
	armed    bool
	closed   bool
	rearms   int
}

// NewContinuation はContinuationを生成する。
func NewContinuation(marginPx int, probe ArmProbe, loadNext func()) *Continuation {
	if marginPx <= 0 {
		marginPx = DefaultSentinelMarginPx
	}
	return &Continuation{probe: probe, loadNext: loadNext, marginPx: marginPx}
}

// Refresh は待ち受けを破棄し、条件を満たしていれば作り直す。
func (c *Continuation) Refresh() {
	armed := c.probe()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.armed = false
		return
	}
	c.armed = armed
	if armed {
		c.rearms++
	}
}

// Visible は番兵要素が先読みマージン内に入ったことを通知する。
// 待ち受け中であれば次ページを要求してtrueを返す。1回発火すると次の Refresh まで待ち受けない。
func (c *Continuation) Visible() bool {
	c.mu.Lock()
	if c.closed || !c.armed {
		c.mu.Unlock()
		return false
	}
	c.armed = false
	c.mu.Unlock()

	if !c.probe() {
		return false
	}
	c.loadNext()
	return true
}

// Watch は可視通知をctxが終わるまで受け取り続ける。
func (c *Continuation) Watch(ctx context.Context, signals <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			c.Visible()
		}
	}
}

// Armed は待ち受け中かを返す。
func (c *Continuation) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Rearms は待ち受けを作り直した回数を返す。
func (c *Continuation) Rearms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rearms
}

// MarginPx は先読みマージンを返す。
func (c *Continuation) MarginPx() int {
	return c.marginPx
}

// Close は待ち受けを破棄し、以降の通知を無視する。
func (c *Continuation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.armed = false
}
