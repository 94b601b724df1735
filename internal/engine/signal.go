package engine

import (
	"fmt"
	"math"

	"arena/internal/market"
	"arena/internal/types"
)

// RSI 阈值与动量噪声带。
const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0
	momThreshold  = 0.001
)

// baseSignal 是启发式信号的结果。
type baseSignal struct {
	action     string
	confidence float64
	summary    string // 中文信号摘要，拼进 reasoning
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// computeBaseSignal 结合分钟动量、日线趋势与 RSI 给出基础信号。
// mean_reversion 对回调与超买超卖的解读与 momentum_trend 相反：
// 动量派视为卖出信号的弱回调，反转派视为买入机会，反之亦然。
func computeBaseSignal(style types.TradingStyle, ctx *market.Context) baseSignal {
	ret5 := finite(ctx.Intraday.Ret5)
	sma20 := finite(ctx.Daily.SMA20)
	sma60 := finite(ctx.Daily.SMA60)
	rsi := finite(ctx.Daily.RSI14)

	momUp := ret5 >= momThreshold
	momDown := ret5 <= -momThreshold
	trendUp := sma20 > 0 && sma60 > 0 && sma20 > sma60
	trendDown := sma20 > 0 && sma60 > 0 && sma20 < sma60
	overbought := rsi >= rsiOverbought
	oversold := rsi > 0 && rsi <= rsiOversold

	action := ActionHold
	var why string

	if style == types.StyleMeanReversion {
		switch {
		case momDown && !oversold && !trendDown:
			action = ActionBuy
			why = "回调买入: ret_5走弱但未超卖"
		case momDown && oversold:
			action = ActionBuy
			why = "超卖反弹: RSI触底"
		case momUp && overbought:
			action = ActionSell
			why = "冲高派发: RSI超买且动量上冲"
		case momUp && trendDown:
			action = ActionSell
			why = "下降趋势中的反弹视为卖点"
		default:
			why = "无明确反转信号"
		}
	} else {
		// momentum_trend 与未指定风格共用趋势跟随解读。
		switch {
		case momUp && trendUp:
			action = ActionBuy
			why = "顺势买入: 动量与均线同向向上"
		case momDown && overbought:
			action = ActionSell
			why = "动量转弱且RSI超买, 获利了结"
		case momDown && trendDown:
			action = ActionSell
			why = "动量与趋势同向向下"
		case oversold && trendUp:
			action = ActionBuy
			why = "上升趋势中RSI超卖, 低吸"
		default:
			why = "信号不足, 观望"
		}
	}

	conf := 0.5
	if action != ActionHold {
		if (action == ActionBuy && trendUp) || (action == ActionSell && trendDown) {
			conf += 0.1
		}
		conf += math.Min(math.Abs(ret5)*20, 0.15)
		if overbought || oversold {
			conf += 0.1
		}
		if conf > 0.95 {
			conf = 0.95
		}
	}

	summary := fmt.Sprintf("%s | ret_5=%.4f sma20=%.2f sma60=%.2f rsi=%.1f", why, ret5, sma20, sma60, rsi)
	return baseSignal{action: action, confidence: conf, summary: summary}
}

// lotsForConfidence 把信号强度映射到请求手数。
func lotsForConfidence(conf float64) int {
	switch {
	case conf >= 0.9:
		return 3
	case conf >= 0.75:
		return 2
	default:
		return 1
	}
}
