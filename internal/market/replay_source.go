package market

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ReplayBar 是带交易日标记的分钟 K 线。
type ReplayBar struct {
	Bar
	TradingDay string `json:"trading_day"`
}

// symbolSeries 是单个标的的回放数据。
type symbolSeries struct {
	Daily    []Bar       `json:"daily"`
	Intraday []ReplayBar `json:"intraday"`
}

// ReplaySource 从落盘的历史 K 线驱动回放：所有标的共用一个游标，
// 每次 Advance 前进 stride 根分钟 K 线。
type ReplaySource struct {
	mu     sync.Mutex
	series map[string]*symbolSeries
	days   []string
	length int // 最短的 intraday 序列长度
	stride int
	cursor int // 下一次 Advance 落点之前的位置, -1 表示未开始
}

// NewReplaySource 为给定标的加载 <dir>/<symbol>.json。
func NewReplaySource(dir string, symbols []string, stride int) (*ReplaySource, error) {
	if stride <= 0 {
		stride = 1
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("replay: 至少需要一个标的")
	}
	src := &ReplaySource{
		series: make(map[string]*symbolSeries, len(symbols)),
		stride: stride,
		cursor: -1,
	}
	for _, sym := range symbols {
		if _, ok := src.series[sym]; ok {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, sym+".json"))
		if err != nil {
			return nil, fmt.Errorf("读取回放数据失败 (%s): %w", sym, err)
		}
		var s symbolSeries
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("解析回放数据失败 (%s): %w", sym, err)
		}
		if len(s.Intraday) == 0 {
			return nil, fmt.Errorf("回放数据为空 (%s)", sym)
		}
		if src.length == 0 || len(s.Intraday) < src.length {
			src.length = len(s.Intraday)
		}
		src.series[sym] = &s
	}

	// 交易日序列以任一标的为准, 回放数据要求各标的对齐。
	for sym, s := range src.series {
		seen := make(map[string]bool)
		for _, b := range s.Intraday[:src.length] {
			if b.TradingDay != "" && !seen[b.TradingDay] {
				seen[b.TradingDay] = true
				src.days = append(src.days, b.TradingDay)
			}
		}
		_ = sym
		break
	}
	return src, nil
}

// Advance 把游标前进 stride 根 K 线，返回新的回放状态。
// 数据耗尽时返回 false，游标保持不变。
func (r *ReplaySource) Advance() (ReplayStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.cursor + r.stride
	if r.cursor < 0 {
		next = 0
	}
	if next >= r.length {
		return ReplayStatus{}, false
	}
	r.cursor = next
	return r.statusLocked(), true
}

// Status 返回当前游标状态，未开始时 ok=false。
func (r *ReplaySource) Status() (ReplayStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor < 0 {
		return ReplayStatus{}, false
	}
	return r.statusLocked(), true
}

func (r *ReplaySource) statusLocked() ReplayStatus {
	day := r.dayAtLocked(r.cursor)
	dayIndex := 0
	for i, d := range r.days {
		if d == day {
			dayIndex = i
			break
		}
	}
	isStart := r.cursor < r.stride || r.dayAtLocked(r.cursor-r.stride) != day
	nextIdx := r.cursor + r.stride
	isEnd := nextIdx >= r.length || r.dayAtLocked(nextIdx) != day
	return ReplayStatus{
		TradingDay:  day,
		DayIndex:    dayIndex,
		DayCount:    len(r.days),
		CursorIndex: r.cursor,
		IsDayStart:  isStart,
		IsDayEnd:    isEnd,
	}
}

func (r *ReplaySource) dayAtLocked(idx int) string {
	for _, s := range r.series {
		if idx >= 0 && idx < len(s.Intraday) {
			return s.Intraday[idx].TradingDay
		}
		break
	}
	return ""
}

// Price 返回游标处某标的的收盘价。
func (r *ReplaySource) Price(symbol string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[symbol]
	if !ok || r.cursor < 0 || r.cursor >= len(s.Intraday) {
		return 0, false
	}
	return s.Intraday[r.cursor].Close, true
}

// Snapshots 基于游标处的窗口计算某标的的分钟与日线特征。
func (r *ReplaySource) Snapshots(symbol string) (IntradaySnapshot, DailySnapshot, error) {
	r.mu.Lock()
	s, ok := r.series[symbol]
	cursor := r.cursor
	r.mu.Unlock()
	if !ok {
		return IntradaySnapshot{}, DailySnapshot{}, fmt.Errorf("未加载的标的 %s", symbol)
	}
	if cursor < 0 {
		return IntradaySnapshot{}, DailySnapshot{}, fmt.Errorf("回放尚未开始")
	}

	const window = 40
	start := cursor + 1 - window
	if start < 0 {
		start = 0
	}
	intradayBars := make([]Bar, 0, cursor+1-start)
	for _, b := range s.Intraday[start : cursor+1] {
		intradayBars = append(intradayBars, b.Bar)
	}
	intraday, err := BuildIntradaySnapshot(intradayBars)
	if err != nil {
		return IntradaySnapshot{}, DailySnapshot{}, err
	}
	daily, err := BuildDailySnapshot(s.Daily)
	if err != nil {
		return IntradaySnapshot{}, DailySnapshot{}, err
	}
	return intraday, daily, nil
}

// Symbols 返回已加载的标的集合。
func (r *ReplaySource) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.series))
	for sym := range r.series {
		out = append(out, sym)
	}
	return out
}

// Rewind 把游标拨回未开始状态。
func (r *ReplaySource) Rewind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = -1
}
