// Package ledger 把每个周期的决策折算进每个交易员的持久账本：
// 现金、持仓、已实现/未实现盈亏、手续费与资金曲线。
// 同一交易员的写入严格串行，不同交易员互不阻塞。
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"arena/internal/engine"
	"arena/internal/logger"
	"arena/internal/market"
	"arena/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountState 是外部结算出的账户快照。
type AccountState struct {
	TotalBalance float64 `json:"total_balance"`
	Cash         float64 `json:"cash"`
}

// RecordInput 是一次决策落账所需的全部材料。
type RecordInput struct {
	Trader    *types.TraderManifest
	Record    *engine.Record
	Account   AccountState
	Positions []HoldingView
	Replay    market.ReplayStatus
}

// ResetOptions 控制单交易员重置的范围。
type ResetOptions struct {
	ResetMemory     bool // 资金曲线、已平仓配对与回放游标
	ResetPositions  bool // 持仓镜像与未配对买入批次
	ResetStats      bool // 累计统计与每日日志
	PersistSnapshot bool // false 时只改内存，用于预演
}

// Config 组装账本。
type Config struct {
	Repo              Repository
	InitialBalance    float64
	CommissionRate    float64
	DecisionEveryBars int
}

type entry struct {
	mu       sync.Mutex
	snap     *Snapshot
	degraded bool
}

// Store 按 trader_id 维护账本快照，落盘走注入的 Repository。
type Store struct {
	repo              Repository
	initialBalance    float64
	commission        decimal.Decimal
	decisionEveryBars int

	mu      sync.Mutex
	entries map[string]*entry
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("ledger: repository 不能为空")
	}
	initial := cfg.InitialBalance
	if initial <= 0 {
		initial = 1_000_000
	}
	rate := cfg.CommissionRate
	if rate < 0 {
		rate = 0
	}
	if rate == 0 {
		rate = 0.0005 // 双边万五
	}
	return &Store{
		repo:              cfg.Repo,
		initialBalance:    initial,
		commission:        decimal.NewFromFloat(rate),
		decisionEveryBars: cfg.DecisionEveryBars,
		entries:           make(map[string]*entry),
	}, nil
}

// Hydrate 为每个被跟踪的交易员装载落盘快照，缺失时初始化默认账本。
// 已在内存中的交易员跳过：热重载不回退运行中的账本状态与降级标记。
func (s *Store) Hydrate(traders []*types.TraderManifest) error {
	loaded := 0
	for _, t := range traders {
		if t == nil || strings.TrimSpace(t.TraderID) == "" {
			continue
		}
		s.mu.Lock()
		_, tracked := s.entries[t.TraderID]
		s.mu.Unlock()
		if tracked {
			continue
		}
		snap, err := s.repo.Load(t.TraderID)
		switch {
		case err == nil:
			if snap.SchemaVersion > SchemaVersion {
				logger.Warnf("账本: %s 快照版本 %d 高于当前 %d, 按当前结构读取",
					t.TraderID, snap.SchemaVersion, SchemaVersion)
			}
		case err == ErrNotFound:
			snap = s.defaultSnapshot(t.TraderID, t.AIModel)
		default:
			return fmt.Errorf("装载账本失败 (%s): %w", t.TraderID, err)
		}
		s.mu.Lock()
		if _, ok := s.entries[t.TraderID]; !ok {
			s.entries[t.TraderID] = &entry{snap: snap}
			loaded++
		}
		s.mu.Unlock()
	}
	logger.Infof("账本: 新装载 %d 个交易员", loaded)
	return nil
}

func (s *Store) defaultSnapshot(traderID, modelID string) *Snapshot {
	now := time.Now()
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		TraderID:      traderID,
		Stats: Stats{
			InitialBalance:     s.initialBalance,
			LatestTotalBalance: s.initialBalance,
		},
		Config: SnapshotConfig{
			InitialBalance:    s.initialBalance,
			DecisionEveryBars: s.decisionEveryBars,
			ModelID:           modelID,
		},
		Meta: SnapshotMeta{
			RunID:     uuid.NewString(),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (s *Store) entryFor(traderID, modelID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[traderID]
	if !ok {
		// 首次写入时创建。
		e = &entry{snap: s.defaultSnapshot(traderID, modelID)}
		s.entries[traderID] = e
	}
	return e
}

// RecordSnapshot 把一次决策的效果写进账本并持久化。
// 持久化失败只记日志并标记降级，不丢失内存中的账本状态。
func (s *Store) RecordSnapshot(input RecordInput) error {
	if input.Record == nil {
		return fmt.Errorf("ledger: 决策记录不能为空")
	}
	traderID := input.Record.TraderID
	if input.Trader != nil && input.Trader.TraderID != "" {
		traderID = input.Trader.TraderID
	}
	if strings.TrimSpace(traderID) == "" {
		return fmt.Errorf("ledger: 缺少 trader_id")
	}
	modelID := ""
	if input.Trader != nil {
		modelID = input.Trader.AIModel
	}

	e := s.entryFor(traderID, modelID)
	e.mu.Lock()
	defer e.mu.Unlock()

	s.apply(e.snap, &input)
	s.persist(e)
	return nil
}

func (s *Store) apply(snap *Snapshot, input *RecordInput) {
	rec := input.Record
	d := rec.Primary()
	snap.Stats.Decisions++

	executed := d.Executed && rec.Success && d.Quantity > 0
	fee := decimal.Zero
	if executed && (d.Action == engine.ActionBuy || d.Action == engine.ActionSell) {
		notional := decimal.NewFromFloat(d.Price).Mul(decimal.NewFromInt(int64(d.Quantity)))
		fee = notional.Mul(s.commission).Round(2)
		snap.Stats.TotalFeesPaid = decimal.NewFromFloat(snap.Stats.TotalFeesPaid).Add(fee).Round(2).InexactFloat64()
		if d.Action == engine.ActionBuy {
			snap.Stats.BuyTrades++
		} else {
			snap.Stats.SellTrades++
		}
	}

	// 胜负只统计带已实现盈亏的已执行卖出。
	if executed && d.Action == engine.ActionSell && d.RealizedPnL != nil {
		if *d.RealizedPnL >= 0 {
			snap.Stats.Wins++
		} else {
			snap.Stats.Losses++
		}
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	// FIFO 批次配对。
	if executed {
		switch d.Action {
		case engine.ActionBuy:
			snap.OpenLots = append(snap.OpenLots, OpenLot{
				Symbol:       d.Symbol,
				Quantity:     d.Quantity,
				EntryPrice:   d.Price,
				EntryOrderID: uuid.NewString(),
				EntryTs:      ts,
			})
		case engine.ActionSell:
			consumeLots(snap, d.Symbol, d.Quantity, d.Price, uuid.NewString(), ts)
		}
	}

	balance := decimal.NewFromFloat(input.Account.TotalBalance).Sub(fee).Round(2).InexactFloat64()
	snap.Stats.LatestTotalBalance = balance
	if snap.Stats.InitialBalance > 0 {
		snap.Stats.ReturnRatePct = (balance - snap.Stats.InitialBalance) / snap.Stats.InitialBalance * 100
	}

	// 持仓镜像整体替换：它反映外部仓位状态, 不从账本推导。
	snap.Holdings = append([]HoldingView{}, input.Positions...)

	// 资金曲线每次记录都追加, 包含观望周期。
	snap.EquityCurve = append(snap.EquityCurve, EquityPoint{Ts: ts, TotalEquity: balance})

	s.updateJournal(snap, &d, executed, input.Replay, balance)
	snap.Replay = input.Replay
	snap.Meta.UpdatedAt = time.Now()
}

func (s *Store) updateJournal(snap *Snapshot, d *engine.Decision, executed bool, replay market.ReplayStatus, balance float64) {
	day := strings.TrimSpace(replay.TradingDay)
	if day == "" {
		return
	}
	var cur *JournalEntry
	if n := len(snap.DailyJournal); n > 0 && snap.DailyJournal[n-1].TradingDay == day && !snap.DailyJournal[n-1].Closed {
		cur = &snap.DailyJournal[n-1]
	}
	if cur == nil {
		snap.DailyJournal = append(snap.DailyJournal, JournalEntry{
			TradingDay:   day,
			StartEquity:  balance,
			PeakEquity:   balance,
			TroughEquity: balance,
		})
		cur = &snap.DailyJournal[len(snap.DailyJournal)-1]
	}
	if balance > cur.PeakEquity {
		cur.PeakEquity = balance
	}
	if balance < cur.TroughEquity {
		cur.TroughEquity = balance
	}
	switch {
	case executed && d.Action == engine.ActionBuy:
		cur.BuyCount++
	case executed && d.Action == engine.ActionSell:
		cur.SellCount++
	default:
		cur.HoldCount++
	}
	if replay.IsDayEnd {
		cur.EndEquity = balance
		cur.Closed = true
	}
}

// consumeLots 按先进先出消耗未配对批次，生成已平仓配对记录。
func consumeLots(snap *Snapshot, symbol string, qty int, exitPrice float64, exitOrderID string, ts time.Time) {
	remaining := qty
	kept := snap.OpenLots[:0]
	for i := range snap.OpenLots {
		lot := snap.OpenLots[i]
		if remaining <= 0 || lot.Symbol != symbol {
			kept = append(kept, lot)
			continue
		}
		take := lot.Quantity
		if take > remaining {
			take = remaining
		}
		pnl := decimal.NewFromFloat(exitPrice).Sub(decimal.NewFromFloat(lot.EntryPrice)).
			Mul(decimal.NewFromInt(int64(take))).Round(2).InexactFloat64()
		snap.ClosedPositions = append(snap.ClosedPositions, ClosedPosition{
			Symbol:       symbol,
			Quantity:     take,
			EntryOrderID: lot.EntryOrderID,
			ExitOrderID:  exitOrderID,
			EntryPrice:   lot.EntryPrice,
			ExitPrice:    exitPrice,
			RealizedPnL:  pnl,
			ClosedAt:     ts,
		})
		lot.Quantity -= take
		remaining -= take
		if lot.Quantity > 0 {
			kept = append(kept, lot)
		}
	}
	snap.OpenLots = kept
}

func (s *Store) persist(e *entry) {
	if err := s.repo.Save(e.snap); err != nil {
		e.degraded = true
		logger.Errorf("账本: 持久化失败 (%s), 进入降级状态: %v", e.snap.TraderID, err)
		return
	}
	if e.degraded {
		logger.Infof("账本: %s 持久化恢复", e.snap.TraderID)
	}
	e.degraded = false
}

// ResetAll 把所有被跟踪的交易员重置为默认账本并持久化。幂等。
func (s *Store) ResetAll() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		e := s.entryFor(id, "")
		e.mu.Lock()
		modelID := e.snap.Config.ModelID
		e.snap = s.defaultSnapshot(id, modelID)
		s.persist(e)
		e.mu.Unlock()
	}
	logger.Infof("账本: 已全量重置 %d 个交易员", len(ids))
	return nil
}

// ResetTrader 按范围重置单个交易员，其他交易员与未选中的范围不受影响。
func (s *Store) ResetTrader(traderID string, opts ResetOptions) error {
	s.mu.Lock()
	e, ok := s.entries[traderID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("ledger: 未跟踪的交易员 %s", traderID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if opts.ResetMemory {
		e.snap.EquityCurve = nil
		e.snap.ClosedPositions = nil
		e.snap.Replay = market.ReplayStatus{}
	}
	if opts.ResetPositions {
		e.snap.Holdings = nil
		e.snap.OpenLots = nil
	}
	if opts.ResetStats {
		e.snap.Stats = Stats{
			InitialBalance:     e.snap.Config.InitialBalance,
			LatestTotalBalance: e.snap.Config.InitialBalance,
		}
		e.snap.DailyJournal = nil
	}
	e.snap.Meta.UpdatedAt = time.Now()
	if opts.PersistSnapshot {
		s.persist(e)
	}
	return nil
}

// Snapshot 返回某交易员账本的深拷贝。
func (s *Store) Snapshot(traderID string) (*Snapshot, error) {
	s.mu.Lock()
	e, ok := s.entries[traderID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Clone(), nil
}

// Snapshots 返回全部被跟踪交易员的账本拷贝，按 trader_id 排序。
func (s *Store) Snapshots() []*Snapshot {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	out := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := s.Snapshot(id); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// Degraded 返回当前处于持久化降级状态的交易员。
func (s *Store) Degraded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, e := range s.entries {
		e.mu.Lock()
		if e.degraded {
			ids = append(ids, id)
		}
		e.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}
