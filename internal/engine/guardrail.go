package engine

import (
	"arena/internal/market"
)

// 护栏约束名，会原样出现在 reasoning 里，便于前端与测试检索。
const (
	boundConcentration = "concentration"
	boundCashReserve   = "cash reserve"
	boundTurnover      = "turnover throttle"
)

// floorLot 把数量向下取整到一手的整数倍。
func floorLot(qty float64) int {
	if qty <= 0 {
		return 0
	}
	return int(qty) / LotSize * LotSize
}

// clipBuyQuantity 计算买入数量的上限：
// (a) 单标的集中度占总权益比例 (b) 预留现金之后的可用资金 (c) 单周期换手额度。
// 返回最终数量与生效的约束名（多个约束同时收敛到同一数量时全部列出）。
func clipBuyQuantity(ctx *market.Context, g market.GuardrailConfig, symbol string, price float64, requested int) (int, []string) {
	if requested <= 0 || price <= 0 {
		return 0, nil
	}
	equity := ctx.TotalEquity()
	heldValue := float64(ctx.HeldQuantity(symbol)) * price

	type bound struct {
		name string
		qty  int
	}
	bounds := []bound{
		{boundConcentration, floorLot((g.MaxSymbolConcentrationPct/100*equity - heldValue) / price)},
		{boundCashReserve, floorLot((ctx.Position.CashCNY - g.MinCashReservePct/100*equity) / price)},
		{boundTurnover, floorLot(g.TurnoverThrottlePct / 100 * equity / price)},
	}

	granted := requested
	for _, b := range bounds {
		if b.qty < granted {
			granted = b.qty
		}
	}
	if granted < 0 {
		granted = 0
	}
	if granted >= requested {
		return requested, nil
	}
	var binding []string
	for _, b := range bounds {
		if b.qty == granted {
			binding = append(binding, b.name)
		}
	}
	return granted, binding
}

// clipSellQuantity 对卖出应用换手额度，但不低于一手，也不超过持仓。
func clipSellQuantity(ctx *market.Context, g market.GuardrailConfig, price float64, held int) (int, []string) {
	if held <= 0 || price <= 0 {
		return 0, nil
	}
	if held < LotSize {
		// 零股仓位一次性卖出。
		return held, nil
	}
	turnBound := floorLot(g.TurnoverThrottlePct / 100 * ctx.TotalEquity() / price)
	if turnBound < LotSize {
		turnBound = LotSize
	}
	if turnBound >= held {
		return held, nil
	}
	return turnBound, []string{boundTurnover}
}
