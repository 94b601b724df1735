package scheduler

import (
	"sync"

	"arena/internal/engine"
	"arena/internal/logger"
	"arena/internal/market"
	"arena/internal/types"
)

// Event 是一次决策产出后向下游广播的载荷：
// 账本、审计日志、实时推送各自订阅，调度器不直接写任何存储。
type Event struct {
	Trader  *types.TraderManifest
	Record  *engine.Record
	Context *market.Context
	Replay  market.ReplayStatus
}

type subscriber struct {
	name string
	ch   chan Event
}

// Bus 是有界的决策事件总线。慢消费者的事件会被丢弃并告警，
// 而不是阻塞调度循环。
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	closed bool
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe 注册一个命名订阅者，返回其有界事件通道。
func (b *Bus) Subscribe(name string, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, subscriber{name: name, ch: ch})
	return ch
}

// Publish 把事件投递给所有订阅者，通道满时丢弃该订阅者的本条事件。
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			logger.Warnf("事件总线: 订阅者 %s 队列已满, 丢弃事件 trader=%s cycle=%d",
				sub.name, evt.Record.TraderID, evt.Record.CycleNumber)
		}
	}
}

// Close 关闭所有订阅通道，之后的 Publish 为空操作。
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
