// Package app 负责应用级编排：加载依赖→装配调度器与账本→启动管理服务，
// 并把事件总线上的决策分发给账本与审计日志。
package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"arena/internal/audit"
	"arena/internal/config"
	"arena/internal/ledger"
	"arena/internal/logger"
	"arena/internal/market"
	"arena/internal/registry"
	"arena/internal/scheduler"
	adminhttp "arena/internal/transport/http/admin"
	"arena/internal/types"

	"golang.org/x/sync/errgroup"
)

// App 持有一次运行所需的全部组件。
type App struct {
	cfg       *config.Config
	reg       *registry.Registry
	replay    *market.ReplaySource
	sched     *scheduler.Scheduler
	store     *ledger.Store
	auditLog  *audit.Log
	adminHTTP *adminhttp.Server

	repoCloser interface{ Close() error }

	advice *adviceBox

	pfMu       sync.Mutex
	portfolios map[string]*portfolio

	// advanceMu 保证同一周期内回放游标只前进一次。
	advanceMu     sync.Mutex
	advancedCycle int
	lastReplay    market.ReplayStatus
	exhausted     bool
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	reg, err := registry.NewRegistry(cfg.Traders.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("加载交易员清单失败: %w", err)
	}
	traders := reg.Traders()

	symbols := unionStockPools(traders)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("清单中没有任何股票池标的")
	}
	replay, err := market.NewReplaySource(cfg.Arena.BarsDir, symbols, cfg.Arena.DecisionEveryBars)
	if err != nil {
		return nil, fmt.Errorf("初始化回放数据源失败: %w", err)
	}

	a := &App{
		cfg:        cfg,
		reg:        reg,
		replay:     replay,
		advice:     newAdviceBox(),
		portfolios: make(map[string]*portfolio),
	}

	var repo ledger.Repository
	switch cfg.Ledger.Backend {
	case "sqlite":
		gr, err := ledger.NewGormRepository(cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("初始化 sqlite 账本失败: %w", err)
		}
		repo = gr
		a.repoCloser = gr
	default:
		fr, err := ledger.NewFileRepository(cfg.Ledger.Dir)
		if err != nil {
			return nil, fmt.Errorf("初始化文件账本失败: %w", err)
		}
		repo = fr
	}

	store, err := ledger.NewStore(ledger.Config{
		Repo:              repo,
		InitialBalance:    cfg.Ledger.InitialBalance,
		CommissionRate:    cfg.Ledger.CommissionRate,
		DecisionEveryBars: cfg.Arena.DecisionEveryBars,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Hydrate(traders); err != nil {
		return nil, err
	}
	a.store = store
	a.ensurePortfolios(traders)

	var clock scheduler.Clock
	if cfg.Arena.ExternalPace {
		clock = scheduler.NewExternalPaceClock()
	} else {
		clock = scheduler.NewTimerClock(time.Duration(cfg.Arena.CycleMs) * time.Millisecond)
	}
	a.sched = scheduler.New(scheduler.Config{
		Traders:           traders,
		Evaluate:          a.evaluate,
		Clock:             clock,
		CycleMs:           cfg.Arena.CycleMs,
		DecisionEveryBars: cfg.Arena.DecisionEveryBars,
		MaxHistory:        cfg.Arena.MaxHistory,
	})

	if cfg.Audit.Enabled {
		log, err := audit.NewLog(cfg.Audit.LogPath)
		if err != nil {
			return nil, fmt.Errorf("初始化审计日志失败: %w", err)
		}
		a.auditLog = log
	}

	srv, err := adminhttp.NewServer(adminhttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Scheduler: a.sched,
		Ledgers:   a.store,
		Registry:  reg,
		Advisor:   a,
	})
	if err != nil {
		return nil, err
	}
	a.adminHTTP = srv

	// 清单热重载: 仍被跟踪的交易员保留历史, 新加入的从零开始。
	reg.OnChange(func(snap registry.Snapshot) {
		if err := a.store.Hydrate(snap.Traders); err != nil {
			logger.Errorf("热重载: 装载新交易员账本失败: %v", err)
			return
		}
		a.ensurePortfolios(snap.Traders)
		a.sched.SetTraders(snap.Traders)
	})

	return a, nil
}

// Run 启动管理服务与调度循环，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	logger.Infof("Arena: 启动 环境=%s 交易员=%d 标的=%d 账本=%s",
		a.cfg.App.Env, len(a.sched.Traders()), len(a.replay.Symbols()), a.cfg.Ledger.Backend)

	ledgerCh := a.sched.Bus().Subscribe("ledger", 256)
	var auditCh <-chan scheduler.Event
	if a.auditLog != nil {
		auditCh = a.sched.Bus().Subscribe("audit", 256)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.adminHTTP.Start(gctx); err != nil {
			return fmt.Errorf("admin http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		a.consumeLedger(ledgerCh)
		return nil
	})
	if auditCh != nil {
		group.Go(func() error {
			a.consumeAudit(auditCh)
			return nil
		})
	}
	group.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	a.sched.Start(gctx)
	if !a.cfg.Arena.StartPaused {
		a.sched.Resume()
	}
	return group.Wait()
}

// Scheduler 暴露调度器实例（测试与回放驱动用）。
func (a *App) Scheduler() *scheduler.Scheduler {
	if a == nil {
		return nil
	}
	return a.sched
}

// Ledgers 暴露账本实例。
func (a *App) Ledgers() *ledger.Store {
	if a == nil {
		return nil
	}
	return a.store
}

// SubmitSuggestion 接收外部模型的原始输出, 校验通过后在该交易员的
// 下一个决策周期注入引擎。供管理接口调用。
func (a *App) SubmitSuggestion(traderID, raw string) (*market.ExternalDecision, error) {
	if _, ok := a.reg.Trader(traderID); !ok {
		return nil, fmt.Errorf("未知的交易员 %s", traderID)
	}
	return a.advice.submit(traderID, raw)
}

func (a *App) shutdown() {
	a.sched.Stop()
	a.sched.Bus().Close()
	if path := a.cfg.Ledger.ReportPath; path != "" {
		if err := a.store.WriteEquityReport(path); err != nil {
			logger.Warnf("退出时生成资金曲线报告失败: %v", err)
		} else {
			logger.Infof("资金曲线报告已写入 %s", path)
		}
	}
	if a.auditLog != nil {
		_ = a.auditLog.Close()
	}
	if a.repoCloser != nil {
		_ = a.repoCloser.Close()
	}
	logger.Infof("Arena: 已退出")
}

// evaluate 为单个交易员构建一次决策输入：推进回放游标、
// 选取本周期标的、计算特征快照并拼装市场上下文。
func (a *App) evaluate(ctx context.Context, trader *types.TraderManifest, state scheduler.CycleState) (*scheduler.CycleInput, error) {
	status, err := a.advanceOnce(state.CallCount + 1)
	if err != nil {
		return nil, err
	}

	pool := trader.StockPool
	if len(pool) == 0 {
		pool = a.replay.Symbols()
		sort.Strings(pool)
	}
	symbol := pool[state.CallCount%len(pool)]

	price, ok := a.replay.Price(symbol)
	if !ok {
		return nil, fmt.Errorf("标的 %s 无回放行情", symbol)
	}
	intraday, daily, err := a.replay.Snapshots(symbol)
	if err != nil {
		return nil, err
	}

	pf := a.portfolioFor(trader.TraderID)
	guardrails := a.cfg.Guardrails
	mctx := &market.Context{
		Symbol:     symbol,
		Intraday:   intraday,
		Daily:      daily,
		Price:      price,
		Position:   pf.positionState(symbol, price),
		Memory:     pf.memoryState(symbol),
		Candidates: market.CandidateSet{Symbols: pool},
		Guardrails: &guardrails,
		// 管理接口注入的外部建议一次性消费, 仍受全部护栏约束。
		LLMDecision: a.advice.take(trader.TraderID),
	}
	return &scheduler.CycleInput{
		Context:     mctx,
		CycleNumber: state.CallCount + 1,
		Replay:      status,
	}, nil
}

// advanceOnce 确保一个周期内回放游标只前进一次：
// 同周期内并发评估的交易员共享同一个游标状态。
func (a *App) advanceOnce(cycle int) (market.ReplayStatus, error) {
	a.advanceMu.Lock()
	defer a.advanceMu.Unlock()
	if cycle <= a.advancedCycle {
		return a.lastReplay, nil
	}
	status, ok := a.replay.Advance()
	if !ok {
		if !a.exhausted {
			a.exhausted = true
			logger.Warnf("回放数据已耗尽, 自动暂停调度")
			a.sched.Pause()
		}
		return market.ReplayStatus{}, fmt.Errorf("回放数据已耗尽")
	}
	a.advancedCycle = cycle
	a.lastReplay = status
	return status, nil
}

// consumeLedger 顺序消费决策事件：先把已执行的决策落进组合，
// 再按当前行情估值并写入账本。单消费者保证同一交易员的写入有序。
func (a *App) consumeLedger(ch <-chan scheduler.Event) {
	for evt := range ch {
		if evt.Record == nil {
			continue
		}
		pf := a.portfolioFor(evt.Record.TraderID)
		d := evt.Record.Primary()
		pf.apply(d)

		priceOf := func(sym string) (float64, bool) {
			if evt.Context != nil && sym == evt.Context.Symbol && evt.Context.Price > 0 {
				return evt.Context.Price, true
			}
			return a.replay.Price(sym)
		}
		holdings, total := pf.valuation(priceOf)
		err := a.store.RecordSnapshot(ledger.RecordInput{
			Trader:    evt.Trader,
			Record:    evt.Record,
			Account:   ledger.AccountState{TotalBalance: total, Cash: pf.Cash()},
			Positions: holdings,
			Replay:    evt.Replay,
		})
		if err != nil {
			logger.Errorf("账本落账失败 trader=%s cycle=%d: %v",
				evt.Record.TraderID, evt.Record.CycleNumber, err)
		}
	}
}

func (a *App) consumeAudit(ch <-chan scheduler.Event) {
	for evt := range ch {
		if evt.Record == nil {
			continue
		}
		env := audit.Envelope{
			Ts:         evt.Record.Timestamp,
			TraderID:   evt.Record.TraderID,
			Cycle:      evt.Record.CycleNumber,
			TradingDay: evt.Replay.TradingDay,
			Record:     evt.Record,
		}
		if err := a.auditLog.Append(env); err != nil {
			logger.Warnf("审计日志写入失败 trader=%s cycle=%d: %v",
				evt.Record.TraderID, evt.Record.CycleNumber, err)
		}
	}
}

func (a *App) portfolioFor(traderID string) *portfolio {
	a.pfMu.Lock()
	defer a.pfMu.Unlock()
	pf, ok := a.portfolios[traderID]
	if !ok {
		pf = newPortfolio(a.cfg.Ledger.InitialBalance)
		a.portfolios[traderID] = pf
	}
	return pf
}

// ensurePortfolios 为每个交易员准备组合，已有账本的从快照恢复。
func (a *App) ensurePortfolios(traders []*types.TraderManifest) {
	for _, t := range traders {
		a.pfMu.Lock()
		_, exists := a.portfolios[t.TraderID]
		a.pfMu.Unlock()
		if exists {
			continue
		}
		pf := newPortfolio(a.cfg.Ledger.InitialBalance)
		if snap, err := a.store.Snapshot(t.TraderID); err == nil && snap.Stats.Decisions > 0 {
			pf.restore(snap)
		}
		a.pfMu.Lock()
		a.portfolios[t.TraderID] = pf
		a.pfMu.Unlock()
	}
}

func unionStockPools(traders []*types.TraderManifest) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range traders {
		for _, sym := range t.StockPool {
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
