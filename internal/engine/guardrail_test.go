package engine

import (
	"testing"

	"arena/internal/market"

	"github.com/stretchr/testify/assert"
)

func TestFloorLot(t *testing.T) {
	assert.Equal(t, 0, floorLot(-10))
	assert.Equal(t, 0, floorLot(99))
	assert.Equal(t, 100, floorLot(100))
	assert.Equal(t, 100, floorLot(199.9))
	assert.Equal(t, 300, floorLot(350))
}

func TestClipBuyQuantity(t *testing.T) {
	g := market.DefaultGuardrails()

	t.Run("约束内不动", func(t *testing.T) {
		ctx := &market.Context{Symbol: "600519", Price: 10, Position: market.PositionState{CashCNY: 100_000}}
		qty, binding := clipBuyQuantity(ctx, g, "600519", 10, 100)
		assert.Equal(t, 100, qty)
		assert.Empty(t, binding)
	})

	t.Run("已有仓位挤占集中度额度", func(t *testing.T) {
		// 权益 10 万, 集中度上限 30% = 3 万, 已持有 2900 股 @10 = 2.9 万
		ctx := &market.Context{
			Symbol: "600519", Price: 10,
			Position: market.PositionState{Shares: 2900, AvgCost: 10, CashCNY: 71_000},
		}
		qty, binding := clipBuyQuantity(ctx, g, "600519", 10, 500)
		assert.Equal(t, 100, qty)
		assert.Equal(t, []string{"concentration"}, binding)
	})

	t.Run("额度为负时归零", func(t *testing.T) {
		// 现金几乎全部是预留, 可用额度为负
		ctx := &market.Context{
			Symbol: "600519", Price: 10,
			Position: market.PositionState{Shares: 5000, AvgCost: 10, CashCNY: 1_000},
		}
		qty, _ := clipBuyQuantity(ctx, g, "600519", 10, 100)
		assert.Equal(t, 0, qty)
	})

	t.Run("非法输入", func(t *testing.T) {
		ctx := &market.Context{Symbol: "600519", Price: 10}
		qty, binding := clipBuyQuantity(ctx, g, "600519", 10, 0)
		assert.Equal(t, 0, qty)
		assert.Empty(t, binding)
	})
}

func TestClipSellQuantity(t *testing.T) {
	g := market.DefaultGuardrails()

	t.Run("零股仓位一次性卖出", func(t *testing.T) {
		ctx := &market.Context{Symbol: "600519", Price: 10, Position: market.PositionState{Shares: 50, CashCNY: 1_000}}
		qty, binding := clipSellQuantity(ctx, g, 10, 50)
		assert.Equal(t, 50, qty)
		assert.Empty(t, binding)
	})

	t.Run("换手额度收敛大仓位", func(t *testing.T) {
		// 权益 = 1000 + 9000×10 = 9.1 万, 换手 20% = 1.82 万 → 1800 股
		ctx := &market.Context{Symbol: "600519", Price: 10, Position: market.PositionState{Shares: 9000, CashCNY: 1_000}}
		qty, binding := clipSellQuantity(ctx, g, 10, 9000)
		assert.Equal(t, 1800, qty)
		assert.Equal(t, []string{"turnover throttle"}, binding)
	})

	t.Run("额度不低于一手", func(t *testing.T) {
		ctx := &market.Context{Symbol: "600519", Price: 100, Position: market.PositionState{Shares: 300}}
		// 权益 3 万, 换手 20% = 6000 → 60 股, 抬到一手
		qty, binding := clipSellQuantity(ctx, g, 100, 300)
		assert.Equal(t, 100, qty)
		assert.Equal(t, []string{"turnover throttle"}, binding)
	})

	t.Run("无持仓", func(t *testing.T) {
		ctx := &market.Context{Symbol: "600519", Price: 10}
		qty, _ := clipSellQuantity(ctx, g, 10, 0)
		assert.Equal(t, 0, qty)
	})
}
