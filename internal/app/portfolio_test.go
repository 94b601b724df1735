package app

import (
	"testing"

	"arena/internal/engine"
	"arena/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolio_ApplyBuySell(t *testing.T) {
	pf := newPortfolio(100_000)

	pf.apply(engine.Decision{
		Action: engine.ActionBuy, Symbol: "600519",
		Quantity: 200, Price: 10, Executed: true,
	})
	assert.InDelta(t, 98_000.0, pf.Cash(), 1e-9)

	state := pf.positionState("600519", 11)
	assert.Equal(t, 200, state.Shares)
	assert.InDelta(t, 10.0, state.AvgCost, 1e-9)
	assert.InDelta(t, 200.0, state.UnrealizedPnL, 1e-9)

	// 加仓摊平成本
	pf.apply(engine.Decision{
		Action: engine.ActionBuy, Symbol: "600519",
		Quantity: 200, Price: 12, Executed: true,
	})
	state = pf.positionState("600519", 12)
	assert.Equal(t, 400, state.Shares)
	assert.InDelta(t, 11.0, state.AvgCost, 1e-9)

	// 全部卖出
	pf.apply(engine.Decision{
		Action: engine.ActionSell, Symbol: "600519",
		Quantity: 400, Price: 12, Executed: true,
	})
	assert.InDelta(t, 98_000-2400+4800, pf.Cash(), 1e-9)
	state = pf.positionState("600519", 12)
	assert.Equal(t, 0, state.Shares)
}

func TestPortfolio_IgnoresUnexecutedDecisions(t *testing.T) {
	pf := newPortfolio(100_000)
	pf.apply(engine.Decision{Action: engine.ActionBuy, Symbol: "600519", Quantity: 100, Price: 10})
	pf.apply(engine.Decision{Action: engine.ActionHold})
	assert.InDelta(t, 100_000.0, pf.Cash(), 1e-9)
}

func TestPortfolio_MemoryStateExcludesCurrentSymbol(t *testing.T) {
	pf := newPortfolio(100_000)
	pf.apply(engine.Decision{Action: engine.ActionBuy, Symbol: "600519", Quantity: 100, Price: 10, Executed: true})
	pf.apply(engine.Decision{Action: engine.ActionBuy, Symbol: "000858", Quantity: 200, Price: 20, Executed: true})

	mem := pf.memoryState("600519")
	require.Len(t, mem.Holdings, 1)
	assert.Equal(t, "000858", mem.Holdings[0].Symbol)
	assert.Equal(t, 200, mem.Holdings[0].Quantity)
}

func TestPortfolio_Valuation(t *testing.T) {
	pf := newPortfolio(100_000)
	pf.apply(engine.Decision{Action: engine.ActionBuy, Symbol: "600519", Quantity: 100, Price: 10, Executed: true})
	pf.apply(engine.Decision{Action: engine.ActionBuy, Symbol: "000858", Quantity: 200, Price: 20, Executed: true})
	// 现金 = 100000 − 1000 − 4000 = 95000

	prices := map[string]float64{"600519": 12}
	views, total := pf.valuation(func(sym string) (float64, bool) {
		px, ok := prices[sym]
		return px, ok
	})

	// 600519 按行情 12 计, 000858 查不到行情按成本 20 计
	assert.InDelta(t, 95_000+100*12+200*20, total, 1e-9)
	require.Len(t, views, 2)
	for _, v := range views {
		switch v.Symbol {
		case "600519":
			assert.InDelta(t, 12.0, v.MarkPrice, 1e-9)
			assert.InDelta(t, 200.0, v.UnrealizedPnL, 1e-9)
		case "000858":
			assert.InDelta(t, 20.0, v.MarkPrice, 1e-9)
			assert.InDelta(t, 0.0, v.UnrealizedPnL, 1e-9)
		default:
			t.Fatalf("意外的标的 %s", v.Symbol)
		}
	}
}

func TestPortfolio_RestoreFromSnapshot(t *testing.T) {
	pf := newPortfolio(1_000_000)
	pf.restore(&ledger.Snapshot{
		Stats: ledger.Stats{LatestTotalBalance: 1_005_000},
		Holdings: []ledger.HoldingView{
			{Symbol: "600519", Quantity: 300, EntryPrice: 10, MarkPrice: 11},
			{Symbol: "000858", Quantity: 100, EntryPrice: 20}, // 无标价, 按成本计
		},
	})

	// 现金 = 1005000 − 300×11 − 100×20 = 999700
	assert.InDelta(t, 999_700.0, pf.Cash(), 1e-9)
	state := pf.positionState("600519", 11)
	assert.Equal(t, 300, state.Shares)
	assert.InDelta(t, 10.0, state.AvgCost, 1e-9)
}
