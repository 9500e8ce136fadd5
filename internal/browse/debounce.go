package browse

import (
	"sync"
	"time"
)

// Timer は停止可能なタイマー。
type Timer interface {
	Stop() bool
}

// AfterFunc は d 経過後に f を別ゴルーチンで呼ぶタイマーを生成する。テストでは偽の時計に差し替える。
type AfterFunc func(d time.Duration, f func()) Timer

// realAfterFunc は time.AfterFunc を使う既定の実装。
func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer は最後の Trigger から一定時間入力が無かったときに1回だけ処理を実行する。
// 世代番号で古いタイマーの発火を無視する。
type Debouncer struct {
	mu        sync.Mutex
	delay     time.Duration
	afterFunc AfterFunc
	timer     Timer
	gen       uint64
	pending   func()
}

// NewDebouncer はDebouncerを生成する。afterFuncがnilの場合は time.AfterFunc を使う。
func NewDebouncer(delay time.Duration, afterFunc AfterFunc) *Debouncer {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Debouncer{delay: delay, afterFunc: afterFunc}
}

// Trigger は保留中の処理を fn で置き換え、タイマーを張り直す。
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = fn
	gen := d.gen
	d.timer = d.afterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// Flush は保留中の処理があれば待たずに実行する。実行した場合はtrueを返す。
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.pending
	if fn == nil {
		d.mu.Unlock()
		return false
	}
	d.cancelLocked()
	d.mu.Unlock()

	fn()
	return true
}

// Cancel は保留中の処理を破棄する。
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

// Pending は実行待ちの処理があるかを返す。
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
