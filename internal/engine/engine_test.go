package engine

import (
	"testing"
	"time"

	"arena/internal/market"
	"arena/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrader(style, risk string) *types.TraderManifest {
	t := &types.TraderManifest{
		TraderID:     "t1",
		TraderName:   "测试交易员",
		AIModel:      "test-model",
		TradingStyle: style,
		RiskProfile:  risk,
		StockPool:    []string{"600519"},
	}
	t.Resolve()
	return t
}

func baseContext() *market.Context {
	return &market.Context{
		Symbol: "600519",
		Price:  10,
		Intraday: market.IntradaySnapshot{
			Ret5: 0.004,
		},
		Daily: market.DailySnapshot{
			SMA20: 105,
			SMA60: 100,
			RSI14: 58,
		},
		Position: market.PositionState{
			CashCNY: 100_000,
		},
		Candidates: market.CandidateSet{Symbols: []string{"600519"}},
	}
}

func primary(t *testing.T, rec *Record) Decision {
	t.Helper()
	require.NotNil(t, rec)
	require.NotEmpty(t, rec.Decisions)
	return rec.Decisions[0]
}

func TestDecide_MomentumBuy(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")
	rec := Decide(trader, 1, baseContext(), time.Now())
	d := primary(t, rec)

	assert.Equal(t, ActionBuy, d.Action)
	assert.Equal(t, "600519", d.Symbol)
	assert.InDelta(t, 0.68, d.Confidence, 1e-9)
	assert.Equal(t, 100, d.Quantity) // 置信度 0.68 → 1 手
	assert.Equal(t, 100, d.RequestedQuantity)
	assert.True(t, d.Executed)
	assert.True(t, rec.Success)
	assert.GreaterOrEqual(t, len(rec.ReasoningStepsCN), 2)
	assert.LessOrEqual(t, len(rec.ReasoningStepsCN), 4)
}

func TestDecide_OverboughtSellWithRealizedPnL(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")
	ctx := baseContext()
	ctx.Intraday.Ret5 = -0.004
	ctx.Daily.RSI14 = 75
	ctx.Position.Shares = 200
	ctx.Position.AvgCost = 9

	rec := Decide(trader, 2, ctx, time.Now())
	d := primary(t, rec)

	assert.Equal(t, ActionSell, d.Action)
	assert.Equal(t, 200, d.Quantity)
	assert.True(t, d.Executed)
	require.NotNil(t, d.RealizedPnL)
	assert.InDelta(t, (10-9)*200, *d.RealizedPnL, 1e-9)
}

func TestDecide_StyleFlipOnWeakPullback(t *testing.T) {
	// 高位回调: ret_5 小幅为负, RSI 超买, 日线趋势向上, 手里有浮盈持仓。
	// 同一份上下文, 动量派获利了结, 反转派加仓。
	build := func() *market.Context {
		ctx := baseContext()
		ctx.Intraday.Ret5 = -0.005
		ctx.Daily.RSI14 = 72
		ctx.Position.Shares = 200
		ctx.Position.AvgCost = 9
		return ctx
	}

	t.Run("动量派获利了结", func(t *testing.T) {
		rec := Decide(newTrader("momentum_trend", "balanced"), 1, build(), time.Now())
		d := primary(t, rec)
		assert.Equal(t, ActionSell, d.Action)
		assert.Equal(t, 200, d.Quantity)
		require.NotNil(t, d.RealizedPnL)
		assert.InDelta(t, (10-9)*200, *d.RealizedPnL, 1e-9)
	})
	t.Run("反转派回调买入", func(t *testing.T) {
		rec := Decide(newTrader("mean_reversion", "balanced"), 1, build(), time.Now())
		d := primary(t, rec)
		assert.Equal(t, ActionBuy, d.Action)
		assert.Contains(t, d.Reasoning, "回调买入")
	})
}

func TestDecide_SellWithoutHoldingsDowngradesToHold(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")
	ctx := baseContext()
	ctx.LLMDecision = &market.ExternalDecision{Action: ActionSell, Confidence: 0.8}

	rec := Decide(trader, 1, ctx, time.Now())
	d := primary(t, rec)

	assert.Equal(t, ActionHold, d.Action)
	assert.Equal(t, 0, d.Quantity)
	assert.False(t, d.Executed)
	assert.Contains(t, d.Reasoning, "ignore sell without holdings")
}

func TestDecide_InsufficientCashForOneLot(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")
	ctx := baseContext()
	ctx.Price = 2000 // 一手 20 万, 现金只有 10 万

	rec := Decide(trader, 1, ctx, time.Now())
	d := primary(t, rec)

	assert.Equal(t, ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "insufficient cash for one lot")
}

func TestDecide_MaxPositionCountBlocksNewSymbol(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")
	ctx := baseContext()
	ctx.Memory.Holdings = []market.Holding{
		{Symbol: "000001", Quantity: 100, AvgCost: 10},
		{Symbol: "000002", Quantity: 100, AvgCost: 10},
		{Symbol: "000003", Quantity: 100, AvgCost: 10},
		{Symbol: "000004", Quantity: 100, AvgCost: 10},
		{Symbol: "000005", Quantity: 100, AvgCost: 10},
	}

	rec := Decide(trader, 1, ctx, time.Now())
	d := primary(t, rec)

	assert.Equal(t, ActionHold, d.Action)
	assert.Contains(t, d.Reasoning, "max position count reached")
}

func TestDecide_BuyClippedNamesBindingBounds(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")

	t.Run("集中度单独生效", func(t *testing.T) {
		ctx := baseContext()
		ctx.Price = 100
		ctx.Position.CashCNY = 1_000_000
		ctx.Guardrails = &market.GuardrailConfig{MaxSymbolConcentrationPct: 10}
		ctx.LLMDecision = &market.ExternalDecision{Action: ActionBuy, Confidence: 0.8, Quantity: 5000}

		d := primary(t, Decide(trader, 1, ctx, time.Now()))
		assert.Equal(t, ActionBuy, d.Action)
		assert.Equal(t, 1000, d.Quantity) // 10% × 100万 ÷ 100
		assert.Equal(t, 5000, d.RequestedQuantity)
		assert.Contains(t, d.Reasoning, "quantity clipped by concentration")
		assert.NotContains(t, d.Reasoning, "turnover")
	})

	t.Run("多个约束同时收敛全部列出", func(t *testing.T) {
		ctx := baseContext()
		ctx.Price = 100
		ctx.Position.CashCNY = 1_000_000
		ctx.Guardrails = &market.GuardrailConfig{
			MaxSymbolConcentrationPct: 20,
			TurnoverThrottlePct:       20,
		}
		ctx.LLMDecision = &market.ExternalDecision{Action: ActionBuy, Confidence: 0.8, Quantity: 5000}

		d := primary(t, Decide(trader, 1, ctx, time.Now()))
		assert.Equal(t, 2000, d.Quantity)
		assert.Contains(t, d.Reasoning, "quantity clipped by concentration, turnover throttle")
	})
}

func TestDecide_OpeningPhaseCapsConfidence(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")
	ctx := baseContext()
	ctx.Guardrails = &market.GuardrailConfig{
		OpeningPhaseMode:          true,
		OpeningPhaseMaxLots:       2,
		OpeningPhaseMaxConfidence: 0.6,
	}

	d := primary(t, Decide(trader, 1, ctx, time.Now()))
	assert.Equal(t, ActionBuy, d.Action)
	assert.InDelta(t, 0.6, d.Confidence, 1e-9)
	assert.Contains(t, d.Reasoning, "opening-phase cap")
}

func TestDecide_ConservativeProbeEntry(t *testing.T) {
	trader := newTrader("mean_reversion", "conservative")
	ctx := baseContext()
	// 下降趋势中的受控回调: 基础信号观望, 触发试探建仓。
	ctx.Intraday.Ret5 = -0.005
	ctx.Daily.SMA20 = 95
	ctx.Daily.SMA60 = 100
	ctx.Daily.RSI14 = 50

	d := primary(t, Decide(trader, 1, ctx, time.Now()))
	assert.Equal(t, ActionBuy, d.Action)
	assert.Equal(t, 100, d.Quantity)
	assert.LessOrEqual(t, d.Confidence, 0.45)
	assert.Contains(t, d.Reasoning, "conservative probe-entry")
}

func TestDecide_DegradedInputsHold(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")

	t.Run("缺少上下文", func(t *testing.T) {
		rec := Decide(trader, 1, nil, time.Now())
		d := primary(t, rec)
		assert.Equal(t, ActionHold, d.Action)
		assert.True(t, rec.Success)
	})
	t.Run("非法价格", func(t *testing.T) {
		ctx := baseContext()
		ctx.Price = 0
		d := primary(t, Decide(trader, 1, ctx, time.Now()))
		assert.Equal(t, ActionHold, d.Action)
	})
}

func TestDecide_DeterministicForSameInput(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")
	ts := time.Date(2026, 8, 28, 10, 30, 0, 0, time.Local)
	a := Decide(trader, 7, baseContext(), ts)
	b := Decide(trader, 7, baseContext(), ts)
	assert.Equal(t, a, b)
}

func TestDecide_SelectedSymbolOverride(t *testing.T) {
	trader := newTrader("momentum_trend", "balanced")
	ctx := baseContext()
	ctx.Candidates.SelectedSymbol = "000858"

	d := primary(t, Decide(trader, 1, ctx, time.Now()))
	assert.Equal(t, "000858", d.Symbol)
}
