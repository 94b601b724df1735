package ledger

import (
	"time"

	"arena/internal/market"
)

// SchemaVersion 是落盘快照的当前结构版本，新增字段时递增。
const SchemaVersion = 1

// Stats 是单个交易员的累计统计。
type Stats struct {
	Decisions          int     `json:"decisions"`
	BuyTrades          int     `json:"buy_trades"`
	SellTrades         int     `json:"sell_trades"`
	Wins               int     `json:"wins"`
	Losses             int     `json:"losses"`
	TotalFeesPaid      float64 `json:"total_fees_paid"`
	LatestTotalBalance float64 `json:"latest_total_balance"`
	ReturnRatePct      float64 `json:"return_rate_pct"`
	InitialBalance     float64 `json:"initial_balance"`
}

// HoldingView 镜像外部持仓快照，每次 RecordSnapshot 整体替换。
type HoldingView struct {
	Symbol        string  `json:"symbol"`
	Quantity      int     `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// OpenLot 是等待 FIFO 配对的买入批次。
type OpenLot struct {
	Symbol       string    `json:"symbol"`
	Quantity     int       `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	EntryOrderID string    `json:"entry_order_id"`
	EntryTs      time.Time `json:"entry_ts"`
}

// ClosedPosition 是一对已配平的进出场记录。
type ClosedPosition struct {
	Symbol       string    `json:"symbol"`
	Quantity     int       `json:"quantity"`
	EntryOrderID string    `json:"entry_order_id"`
	ExitOrderID  string    `json:"exit_order_id"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	RealizedPnL  float64   `json:"realized_pnl"`
	ClosedAt     time.Time `json:"closed_at"`
}

// EquityPoint 是资金曲线上的一个点，包含 hold 周期在内每次记录都追加。
type EquityPoint struct {
	Ts          time.Time `json:"ts"`
	TotalEquity float64   `json:"total_equity"`
}

// JournalEntry 是一个交易日的汇总。
type JournalEntry struct {
	TradingDay   string  `json:"trading_day"`
	StartEquity  float64 `json:"start_equity"`
	EndEquity    float64 `json:"end_equity"`
	PeakEquity   float64 `json:"peak_equity"`
	TroughEquity float64 `json:"trough_equity"`
	BuyCount     int     `json:"buy_count"`
	SellCount    int     `json:"sell_count"`
	HoldCount    int     `json:"hold_count"`
	Closed       bool    `json:"closed"`
}

// SnapshotConfig 记录创建快照时的运行参数。
type SnapshotConfig struct {
	InitialBalance    float64 `json:"initial_balance"`
	DecisionEveryBars int     `json:"decision_every_bars"`
	ModelID           string  `json:"model_id"`
}

// SnapshotMeta 是快照的运行元信息。
type SnapshotMeta struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot 是单个交易员的完整账本，一个交易员一份文档。
type Snapshot struct {
	SchemaVersion   int                 `json:"schema_version"`
	TraderID        string              `json:"trader_id"`
	Stats           Stats               `json:"stats"`
	Holdings        []HoldingView       `json:"holdings"`
	OpenLots        []OpenLot           `json:"open_lots"`
	ClosedPositions []ClosedPosition    `json:"closed_positions"`
	EquityCurve     []EquityPoint       `json:"equity_curve"`
	DailyJournal    []JournalEntry      `json:"daily_journal"`
	Replay          market.ReplayStatus `json:"replay"`
	Config          SnapshotConfig      `json:"config"`
	Meta            SnapshotMeta        `json:"meta"`
}

// Clone 深拷贝快照，只读接口返回副本避免外部改写内部状态。
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Holdings = append([]HoldingView{}, s.Holdings...)
	out.OpenLots = append([]OpenLot{}, s.OpenLots...)
	out.ClosedPositions = append([]ClosedPosition{}, s.ClosedPositions...)
	out.EquityCurve = append([]EquityPoint{}, s.EquityCurve...)
	out.DailyJournal = append([]JournalEntry{}, s.DailyJournal...)
	return &out
}
