package app

import (
	"sync"

	"arena/internal/engine"
	"arena/internal/ledger"
	"arena/internal/market"

	"github.com/shopspring/decimal"
)

// position 是组合内单个标的的持仓。
type position struct {
	Quantity int
	AvgCost  float64
}

// portfolio 模拟单个交易员的资金账户：现金与持仓随已执行的决策演进。
// 手续费不在这里扣, 佣金核算是账本的职责。
type portfolio struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*position
}

func newPortfolio(initialCash float64) *portfolio {
	return &portfolio{
		cash:      initialCash,
		positions: make(map[string]*position),
	}
}

// restore 用账本快照重建组合：持仓镜像照搬，现金 = 最新权益 − 持仓市值。
func (p *portfolio) restore(snap *ledger.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = make(map[string]*position, len(snap.Holdings))
	held := 0.0
	for _, h := range snap.Holdings {
		if h.Quantity <= 0 {
			continue
		}
		p.positions[h.Symbol] = &position{Quantity: h.Quantity, AvgCost: h.EntryPrice}
		mark := h.MarkPrice
		if mark <= 0 {
			mark = h.EntryPrice
		}
		held += float64(h.Quantity) * mark
	}
	p.cash = snap.Stats.LatestTotalBalance - held
	if p.cash < 0 {
		p.cash = 0
	}
}

// apply 把一条已执行的决策落进组合。hold 与未执行的决策为空操作。
func (p *portfolio) apply(d engine.Decision) {
	if !d.Executed || d.Quantity <= 0 || d.Price <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	notional := decimal.NewFromFloat(d.Price).Mul(decimal.NewFromInt(int64(d.Quantity)))

	switch d.Action {
	case engine.ActionBuy:
		p.cash = decimal.NewFromFloat(p.cash).Sub(notional).InexactFloat64()
		pos := p.positions[d.Symbol]
		if pos == nil {
			p.positions[d.Symbol] = &position{Quantity: d.Quantity, AvgCost: d.Price}
			return
		}
		totalQty := pos.Quantity + d.Quantity
		pos.AvgCost = (pos.AvgCost*float64(pos.Quantity) + d.Price*float64(d.Quantity)) / float64(totalQty)
		pos.Quantity = totalQty
	case engine.ActionSell:
		p.cash = decimal.NewFromFloat(p.cash).Add(notional).InexactFloat64()
		pos := p.positions[d.Symbol]
		if pos == nil {
			return
		}
		pos.Quantity -= d.Quantity
		if pos.Quantity <= 0 {
			delete(p.positions, d.Symbol)
		}
	}
}

// positionState 构造当前标的的持仓视图。
func (p *portfolio) positionState(symbol string, price float64) market.PositionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := market.PositionState{CashCNY: p.cash}
	if pos, ok := p.positions[symbol]; ok {
		state.Shares = pos.Quantity
		state.AvgCost = pos.AvgCost
		if price > 0 {
			state.UnrealizedPnL = (price - pos.AvgCost) * float64(pos.Quantity)
		}
	}
	return state
}

// memoryState 返回除当前标的以外的持仓记忆。
func (p *portfolio) memoryState(exclude string) market.MemoryState {
	p.mu.Lock()
	defer p.mu.Unlock()
	var mem market.MemoryState
	for sym, pos := range p.positions {
		if sym == exclude || pos.Quantity <= 0 {
			continue
		}
		mem.Holdings = append(mem.Holdings, market.Holding{
			Symbol: sym, Quantity: pos.Quantity, AvgCost: pos.AvgCost,
		})
	}
	return mem
}

// valuation 按给定标价函数估值：返回持仓镜像与总权益。
// 查不到行情的标的按成本价计。
func (p *portfolio) valuation(priceOf func(string) (float64, bool)) ([]ledger.HoldingView, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := decimal.NewFromFloat(p.cash)
	views := make([]ledger.HoldingView, 0, len(p.positions))
	for sym, pos := range p.positions {
		mark := pos.AvgCost
		if px, ok := priceOf(sym); ok && px > 0 {
			mark = px
		}
		value := decimal.NewFromFloat(mark).Mul(decimal.NewFromInt(int64(pos.Quantity)))
		total = total.Add(value)
		views = append(views, ledger.HoldingView{
			Symbol:        sym,
			Quantity:      pos.Quantity,
			EntryPrice:    pos.AvgCost,
			MarkPrice:     mark,
			UnrealizedPnL: (mark - pos.AvgCost) * float64(pos.Quantity),
		})
	}
	return views, total.Round(2).InexactFloat64()
}

// Cash 返回当前现金。
func (p *portfolio) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}
