// Package engine 把一份市场上下文变成一条经过风控裁剪的交易决策。
// Decide 是纯函数：相同输入产出相同结果，不做任何 I/O，
// 所有"不能安全交易"的状态都降级为 hold 而不是报错。
package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"arena/internal/market"
	"arena/internal/types"
)

// 风控降级的标记文本，原样写进 reasoning。
const (
	tagIgnoreSell       = "ignore sell without holdings"
	tagMaxPositionCount = "max position count reached"
	tagInsufficientCash = "insufficient cash for one lot"
	tagOpeningPhase     = "opening-phase cap"
	tagProbeEntry       = "conservative probe-entry"
)

const briefMaxRunes = 80

// Decide 为一个交易员计算当前周期的决策记录。
func Decide(trader *types.TraderManifest, cycleNumber int, ctx *market.Context, ts time.Time) *Record {
	rec := &Record{
		Timestamp:   ts,
		CycleNumber: cycleNumber,
		Success:     true,
	}
	if trader != nil {
		rec.TraderID = trader.TraderID
	}
	if ctx == nil {
		rec.Decisions = []Decision{{Action: ActionHold, Reasoning: "缺少市场上下文, 保持观望"}}
		rec.ReasoningStepsCN = []string{"市场上下文缺失", "本周期不交易"}
		return rec
	}
	rec.CandidateCoins = append([]string{}, ctx.Candidates.Symbols...)

	style := types.StyleUnspecified
	risk := types.RiskAggressive
	if trader != nil {
		style = trader.Style
		risk = trader.Risk
	}

	// 1. 选定标的。
	symbol := ctx.Symbol
	if s := strings.TrimSpace(ctx.Candidates.SelectedSymbol); s != "" {
		symbol = s
	}

	price := ctx.Price
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		d := Decision{Action: ActionHold, Symbol: symbol, Reasoning: "行情价格缺失或非法, 保持观望"}
		rec.Decisions = []Decision{d}
		rec.ReasoningStepsCN = []string{"行情价格不可用", "风控降级为观望"}
		return rec
	}

	g := market.DefaultGuardrails().Merge(ctx.Guardrails)

	// 2. 基础信号。
	sig := computeBaseSignal(style, ctx)
	action := sig.action
	confidence := sig.confidence
	reasonParts := []string{sig.summary}
	requested := 0
	if action == ActionBuy {
		requested = lotsForConfidence(confidence) * LotSize
	}

	// 3. 外部（LLM）建议覆盖基础信号，仍受全部护栏约束。
	if ext := ctx.LLMDecision; ext != nil {
		action = ext.Action
		if s := strings.TrimSpace(ext.Symbol); s != "" {
			symbol = s
		}
		if ext.Confidence > 0 {
			confidence = ext.Confidence
		}
		requested = ext.Quantity
		if requested <= 0 && action == ActionBuy {
			requested = lotsForConfidence(confidence) * LotSize
		}
		if r := strings.TrimSpace(ext.Reasoning); r != "" {
			reasonParts = []string{fmt.Sprintf("模型建议: %s", r)}
		} else {
			reasonParts = []string{"采用外部模型建议"}
		}
	}

	held := ctx.HeldQuantity(symbol)
	var clipped []string

	// 4. 无持仓卖出保护。
	if action == ActionSell && held <= 0 {
		action = ActionHold
		requested = 0
		reasonParts = append(reasonParts, tagIgnoreSell)
	}

	// 5. 持仓数量上限。
	if action == ActionBuy && held == 0 && ctx.HeldSymbolCount() >= g.MaxPositionCount {
		action = ActionHold
		requested = 0
		reasonParts = append(reasonParts, tagMaxPositionCount)
	}

	// 6. 一手买入的资金门槛。
	if action == ActionBuy && ctx.Position.CashCNY < price*LotSize {
		action = ActionHold
		requested = 0
		reasonParts = append(reasonParts, tagInsufficientCash)
	}

	quantity := 0
	switch action {
	case ActionBuy:
		// 7. 集中度 / 现金预留 / 换手额度裁剪，取所有约束的最小值。
		if requested < LotSize {
			requested = LotSize
		}
		requested = requested / LotSize * LotSize
		quantity, clipped = clipBuyQuantity(ctx, g, symbol, price, requested)
		if len(clipped) > 0 {
			reasonParts = append(reasonParts, fmt.Sprintf("quantity clipped by %s", strings.Join(clipped, ", ")))
		}
		if quantity <= 0 {
			action = ActionHold
		}
	case ActionSell:
		requested = held
		quantity, clipped = clipSellQuantity(ctx, g, price, held)
		if len(clipped) > 0 {
			reasonParts = append(reasonParts, fmt.Sprintf("quantity clipped by %s", strings.Join(clipped, ", ")))
		}
	}

	// 8. 开盘阶段限制：手数与置信度双重封顶。
	if g.OpeningPhaseMode {
		capQty := g.OpeningPhaseMaxLots * LotSize
		capped := false
		if action == ActionBuy && quantity > capQty {
			quantity = capQty
			capped = true
		}
		if confidence > g.OpeningPhaseMaxConfidence {
			confidence = g.OpeningPhaseMaxConfidence
			capped = true
		}
		if capped {
			reasonParts = append(reasonParts, tagOpeningPhase)
		}
	}

	// 9. 保守型反转交易员的试探建仓：受控回调下即使信号为 hold 也买入一手。
	if action == ActionHold &&
		risk == types.RiskConservative && style == types.StyleMeanReversion &&
		probeEntryEligible(ctx, symbol, price, g) {
		action = ActionBuy
		requested = LotSize
		quantity = LotSize
		if confidence > 0.45 {
			confidence = 0.45
		}
		reasonParts = append(reasonParts, tagProbeEntry)
		if g.OpeningPhaseMode && confidence > g.OpeningPhaseMaxConfidence {
			confidence = g.OpeningPhaseMaxConfidence
		}
	}

	d := Decision{
		Action:            action,
		Symbol:            symbol,
		Quantity:          quantity,
		RequestedQuantity: requested,
		Price:             price,
		Confidence:        round2(confidence),
	}
	if action == ActionHold {
		d.Quantity = 0
	}

	// 10. 卖出的已实现盈亏。
	if action == ActionSell && d.Quantity > 0 {
		d.Executed = true
		avgCost := avgCostFor(ctx, symbol)
		pnl := (price - avgCost) * float64(d.Quantity)
		d.RealizedPnL = &pnl
	}
	if action == ActionBuy && d.Quantity > 0 {
		d.Executed = true
	}

	// 11. 叙事拼装。
	if brief := trimBrief(ctx.MarketOverview); brief != "" {
		reasonParts = append(reasonParts, "market="+brief)
	}
	if brief := trimBrief(ctx.NewsDigest); brief != "" {
		reasonParts = append(reasonParts, "news="+brief)
	}
	d.Reasoning = strings.Join(reasonParts, "; ")

	rec.Decisions = []Decision{d}
	rec.ReasoningStepsCN = reasoningSteps(style, &d, sig, clipped)
	return rec
}

// probeEntryEligible 判断受控回调：小幅负动量、RSI 不极端、无持仓且买得起一手。
func probeEntryEligible(ctx *market.Context, symbol string, price float64, g market.GuardrailConfig) bool {
	ret5 := finite(ctx.Intraday.Ret5)
	rsi := finite(ctx.Daily.RSI14)
	if ret5 >= -momThreshold || ret5 <= -0.02 {
		return false
	}
	if rsi < 35 || rsi > 65 {
		return false
	}
	if ctx.HeldQuantity(symbol) > 0 {
		return false
	}
	if ctx.HeldSymbolCount() >= g.MaxPositionCount {
		return false
	}
	return ctx.Position.CashCNY >= price*LotSize
}

func avgCostFor(ctx *market.Context, symbol string) float64 {
	if symbol == ctx.Symbol && ctx.Position.AvgCost > 0 {
		return ctx.Position.AvgCost
	}
	for _, h := range ctx.Memory.Holdings {
		if h.Symbol == symbol {
			return h.AvgCost
		}
	}
	return 0
}

func trimBrief(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	runes := []rune(s)
	if len(runes) > briefMaxRunes {
		return string(runes[:briefMaxRunes]) + "…"
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// reasoningSteps 生成 2~4 条中文要点，供前端逐条展示。
func reasoningSteps(style types.TradingStyle, d *Decision, sig baseSignal, clipped []string) []string {
	steps := []string{fmt.Sprintf("信号: %s", sig.summary)}
	switch d.Action {
	case ActionBuy:
		steps = append(steps, fmt.Sprintf("执行: 买入 %s %d股 @%.2f", d.Symbol, d.Quantity, d.Price))
	case ActionSell:
		steps = append(steps, fmt.Sprintf("执行: 卖出 %s %d股 @%.2f", d.Symbol, d.Quantity, d.Price))
	default:
		steps = append(steps, "执行: 观望, 不下单")
	}
	if len(clipped) > 0 {
		steps = append(steps, fmt.Sprintf("风控: 数量受 %s 限制 (%d→%d)", strings.Join(clipped, "/"), d.RequestedQuantity, d.Quantity))
	}
	if style != types.StyleUnspecified && len(steps) < 4 {
		steps = append(steps, fmt.Sprintf("风格: %s, 置信度 %.2f", style, d.Confidence))
	}
	return steps
}
