package browse

import "sync"

// subscriberBuffer は購読チャネルのバッファ長。
const subscriberBuffer = 16

// Broadcaster は View の変化を購読者に配信する。
// 配信はブロックせず、受信が追いつかない購読者へのイベントは捨てる。
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan View]struct{}
	dropped     func()
}

// NewBroadcaster はBroadcasterを生成する。dropped はイベントを捨てたときに呼ばれる（nil可）。
func NewBroadcaster(dropped func()) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan View]struct{}),
		dropped:     dropped,
	}
}

// Subscribe は購読を開始してチャネルを返す。呼び出し側は Unsubscribe で解除する。
func (b *Broadcaster) Subscribe() chan View {
	ch := make(chan View, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe は購読を解除してチャネルを閉じる。
func (b *Broadcaster) Unsubscribe(ch chan View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Publish は全購読者にViewを送る。
func (b *Broadcaster) Publish(v View) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			if b.dropped != nil {
				b.dropped()
			}
		}
	}
}

// Count は購読者数を返す。
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close は全購読を解除する。
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
