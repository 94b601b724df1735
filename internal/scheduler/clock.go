package scheduler

import (
	"context"
	"sync"
	"time"

	"arena/internal/logger"
)

// Clock 把"什么时候跑下一个周期"从调度器里抽出来：
// TimerClock 用内部定时器驱动，ExternalPaceClock 由回放推进器显式敲击。
type Clock interface {
	// Start 注册 tick 回调并开始（或准备）产生节拍。
	Start(task func())
	// SetInterval 更新节拍间隔，下一次节拍生效；外部节奏时钟忽略。
	SetInterval(d time.Duration)
	// Stop 停止产生节拍。
	Stop()
}

// TimerClock 用内部 time.Timer 循环驱动周期。
type TimerClock struct {
	mu       sync.Mutex
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
}

func NewTimerClock(interval time.Duration) *TimerClock {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TimerClock{interval: interval}
}

func (c *TimerClock) Start(task func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || task == nil {
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.loop(c.ctx, task)
}

func (c *TimerClock) loop(ctx context.Context, task func()) {
	logger.Infof("TimerClock: started interval=%s", c.currentInterval())
	for {
		timer := time.NewTimer(c.currentInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("TimerClock: ctx done, exit")
			return
		case <-timer.C:
		}
		task()
	}
}

func (c *TimerClock) currentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

func (c *TimerClock) SetInterval(d time.Duration) {
	if d <= 0 {
		logger.Warnf("TimerClock: invalid interval=%s, ignored", d)
		return
	}
	c.mu.Lock()
	c.interval = d
	c.mu.Unlock()
}

func (c *TimerClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.started = false
}

// ExternalPaceClock 自己不产生节拍，由回放推进器按 N 根 bar 调一次 Tick。
type ExternalPaceClock struct {
	mu   sync.Mutex
	task func()
}

func NewExternalPaceClock() *ExternalPaceClock {
	return &ExternalPaceClock{}
}

func (c *ExternalPaceClock) Start(task func()) {
	c.mu.Lock()
	c.task = task
	c.mu.Unlock()
}

func (c *ExternalPaceClock) SetInterval(time.Duration) {}

func (c *ExternalPaceClock) Stop() {
	c.mu.Lock()
	c.task = nil
	c.mu.Unlock()
}

// Tick 触发一次节拍；未 Start 时为空操作。
func (c *ExternalPaceClock) Tick() {
	c.mu.Lock()
	task := c.task
	c.mu.Unlock()
	if task != nil {
		task()
	}
}
