package market

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

// Bar 是一根行情 K 线（分钟或日线），由外部回放采集器提供。
type Bar struct {
	Ts     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func splitBars(bars []Bar) (highs, lows, closes, volumes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	volumes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		volumes[i] = b.Volume
	}
	return
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v != 0 {
			return v
		}
	}
	return 0
}

// BuildIntradaySnapshot 从分钟 K 线窗口计算引擎需要的分钟级特征。
// 至少需要 21 根 K 线，不足时返回错误，调用方应跳过本周期。
func BuildIntradaySnapshot(bars []Bar) (IntradaySnapshot, error) {
	if len(bars) < 21 {
		return IntradaySnapshot{}, fmt.Errorf("分钟K线不足: 需要21根, 实际%d根", len(bars))
	}
	highs, lows, closes, volumes := splitBars(bars)
	last := closes[len(closes)-1]
	var snap IntradaySnapshot
	if prev := closes[len(closes)-6]; prev > 0 {
		snap.Ret5 = last/prev - 1
	}
	if prev := closes[len(closes)-21]; prev > 0 {
		snap.Ret20 = last/prev - 1
	}
	if len(bars) >= 15 {
		snap.ATR14 = lastValid(talib.Atr(highs, lows, closes, 14))
	}
	volAvg := lastValid(talib.Sma(volumes, 20))
	if volAvg > 0 {
		snap.VolRatio20 = volumes[len(volumes)-1] / volAvg
	}
	return snap, nil
}

// BuildDailySnapshot 从日线窗口计算日线特征，需要至少 60 根日线。
func BuildDailySnapshot(bars []Bar) (DailySnapshot, error) {
	if len(bars) < 60 {
		return DailySnapshot{}, fmt.Errorf("日K线不足: 需要60根, 实际%d根", len(bars))
	}
	highs, lows, closes, _ := splitBars(bars)
	var snap DailySnapshot
	snap.SMA20 = lastValid(talib.Sma(closes, 20))
	snap.SMA60 = lastValid(talib.Sma(closes, 60))
	snap.RSI14 = lastValid(talib.Rsi(closes, 14))

	hi, lo := math.Inf(-1), math.Inf(1)
	for i := len(bars) - 20; i < len(bars); i++ {
		hi = math.Max(hi, highs[i])
		lo = math.Min(lo, lows[i])
	}
	if lo > 0 {
		snap.Range20DPct = (hi - lo) / lo * 100
	}
	return snap, nil
}
