// Package scheduler 负责编排每个交易员的决策周期：
// 何时评估、评估多少次、历史留多长，以及把产出的决策广播给下游。
// 它自己从不写存储，落库由订阅事件总线的消费者完成。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arena/internal/engine"
	"arena/internal/logger"
	"arena/internal/market"
	"arena/internal/types"

	"golang.org/x/sync/errgroup"
)

// CycleState 传给外部评估函数的周期状态。
type CycleState struct {
	CallCount int
}

// CycleInput 是外部评估函数的产物：完整市场上下文 + 周期号 + 回放游标。
// 评估函数是与外部上下文构建器 / LLM 决策器之间的接缝，
// 网络调用的超时由评估函数自己负责。
type CycleInput struct {
	Context     *market.Context
	CycleNumber int
	Replay      market.ReplayStatus
}

// EvaluateFunc 为单个交易员构建一次决策所需的全部输入。
type EvaluateFunc func(ctx context.Context, trader *types.TraderManifest, state CycleState) (*CycleInput, error)

// Metrics 是自上次 Reset 以来的累计计数。
type Metrics struct {
	TotalCycles      int `json:"totalCycles"`
	SuccessfulCycles int `json:"successfulCycles"`
	FailedCycles     int `json:"failedCycles"`
}

// State 是运行状态快照。
type State struct {
	Running           bool `json:"running"`
	CycleMs           int  `json:"cycle_ms"`
	DecisionEveryBars int  `json:"decision_every_bars"`
}

// Config 组装一个调度器。
type Config struct {
	Traders           []*types.TraderManifest
	Evaluate          EvaluateFunc
	Clock             Clock
	Bus               *Bus
	CycleMs           int
	DecisionEveryBars int
	MaxHistory        int
}

// Scheduler 持有交易员集合与每人的调用计数、决策历史环。
type Scheduler struct {
	evaluate          EvaluateFunc
	clock             Clock
	bus               *Bus
	decisionEveryBars int
	maxHistory        int

	// cycleMu 串行化整个周期：同一交易员的第 N 次决策完整落地
	// （包括事件分发）之后才会开始第 N+1 次。
	cycleMu sync.Mutex

	mu      sync.RWMutex
	traders []*types.TraderManifest
	running bool
	cycleMs int
	calls   map[string]int
	history map[string][]*engine.Record
	metrics Metrics
}

func New(cfg Config) *Scheduler {
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 50
	}
	cycleMs := cfg.CycleMs
	if cycleMs <= 0 {
		cycleMs = 60_000
	}
	decisionEveryBars := cfg.DecisionEveryBars
	if decisionEveryBars <= 0 {
		decisionEveryBars = 1
	}
	bus := cfg.Bus
	if bus == nil {
		bus = NewBus()
	}
	return &Scheduler{
		evaluate:          cfg.Evaluate,
		clock:             cfg.Clock,
		bus:               bus,
		decisionEveryBars: decisionEveryBars,
		maxHistory:        maxHistory,
		traders:           append([]*types.TraderManifest{}, cfg.Traders...),
		cycleMs:           cycleMs,
		calls:             make(map[string]int),
		history:           make(map[string][]*engine.Record),
	}
}

// Bus 返回事件总线供下游订阅。
func (s *Scheduler) Bus() *Bus {
	return s.bus
}

// Start 把调度器挂到时钟上。时钟节拍只在 running 时触发周期。
func (s *Scheduler) Start(ctx context.Context) {
	if s.clock == nil {
		return
	}
	s.clock.SetInterval(time.Duration(s.GetState().CycleMs) * time.Millisecond)
	s.clock.Start(func() {
		if !s.GetState().Running {
			return
		}
		s.RunCycleOnce(ctx)
	})
}

// Stop 停掉时钟。不会打断进行中的周期。
func (s *Scheduler) Stop() {
	if s.clock != nil {
		s.clock.Stop()
	}
}

// Resume 进入 running 状态，已在运行时为空操作。
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	logger.Infof("调度器: 恢复运行")
}

// Pause 停止调度新周期；进行中的评估不被取消，其结果照常记录。
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	logger.Infof("调度器: 已暂停")
}

// SetCycleMs 更新内部时钟节拍，下一次 tick 生效。
func (s *Scheduler) SetCycleMs(ms int) {
	if ms <= 0 {
		return
	}
	s.mu.Lock()
	s.cycleMs = ms
	s.mu.Unlock()
	if s.clock != nil {
		s.clock.SetInterval(time.Duration(ms) * time.Millisecond)
	}
}

// GetState 返回运行状态快照。
func (s *Scheduler) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Running: s.running, CycleMs: s.cycleMs, DecisionEveryBars: s.decisionEveryBars}
}

// StepOnce 同步评估一轮全部交易员，与运行状态无关（手动步进）。
func (s *Scheduler) StepOnce(ctx context.Context) {
	s.RunCycleOnce(ctx)
}

// RunCycleOnce 评估当前交易员集合各一次。同一 tick 内不同交易员并发，
// 但整个周期串行，保证单个交易员的决策流严格有序。
func (s *Scheduler) RunCycleOnce(ctx context.Context) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.RLock()
	traders := append([]*types.TraderManifest{}, s.traders...)
	s.mu.RUnlock()
	if len(traders) == 0 || s.evaluate == nil {
		return
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, trader := range traders {
		trader := trader
		eg.Go(func() error {
			s.evaluateOne(egCtx, trader)
			return nil
		})
	}
	_ = eg.Wait()
}

func (s *Scheduler) evaluateOne(ctx context.Context, trader *types.TraderManifest) {
	s.mu.RLock()
	callCount := s.calls[trader.TraderID]
	s.mu.RUnlock()

	input, err := s.evaluate(ctx, trader, CycleState{CallCount: callCount})
	if err != nil || input == nil || input.Context == nil {
		if err == nil {
			err = fmt.Errorf("评估结果为空")
		}
		s.mu.Lock()
		s.metrics.TotalCycles++
		s.metrics.FailedCycles++
		s.mu.Unlock()
		logger.Warnf("调度器: 交易员 %s 周期评估失败: %v", trader.TraderID, err)
		return
	}

	cycleNumber := input.CycleNumber
	if cycleNumber <= 0 {
		cycleNumber = callCount + 1
	}
	rec := engine.Decide(trader, cycleNumber, input.Context, time.Now())

	s.mu.Lock()
	s.calls[trader.TraderID] = callCount + 1
	s.metrics.TotalCycles++
	s.metrics.SuccessfulCycles++
	hist := append(s.history[trader.TraderID], rec)
	if len(hist) > s.maxHistory {
		hist = hist[len(hist)-s.maxHistory:]
	}
	s.history[trader.TraderID] = hist
	s.mu.Unlock()

	s.bus.Publish(Event{Trader: trader, Record: rec, Context: input.Context, Replay: input.Replay})
}

// GetLatestDecisions 返回某交易员最近的决策，新的在前。
func (s *Scheduler) GetLatestDecisions(traderID string, limit int) []*engine.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.history[traderID]
	if limit <= 0 || limit > len(hist) {
		limit = len(hist)
	}
	out := make([]*engine.Record, 0, limit)
	for i := len(hist) - 1; i >= len(hist)-limit; i-- {
		out = append(out, hist[i])
	}
	return out
}

// GetCallCount 返回某交易员自上次 Reset 以来的评估次数。
func (s *Scheduler) GetCallCount(traderID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[traderID]
}

// GetMetrics 返回累计指标。
func (s *Scheduler) GetMetrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// Reset 清空全部历史、调用计数与指标；不触碰账本。
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
	s.history = make(map[string][]*engine.Record)
	s.metrics = Metrics{}
	logger.Infof("调度器: 运行时状态已清零")
}

// SetTraders 原子替换活动交易员集合。仍被跟踪的交易员保留历史与计数，
// 新加入的从零开始。
func (s *Scheduler) SetTraders(list []*types.TraderManifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traders = append([]*types.TraderManifest{}, list...)
	logger.Infof("调度器: 交易员集合已更新, 共 %d 人", len(list))
}

// Traders 返回当前活动集合的副本。
func (s *Scheduler) Traders() []*types.TraderManifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*types.TraderManifest{}, s.traders...)
}
