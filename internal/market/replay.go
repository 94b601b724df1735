package market

// ReplayStatus 是回放时钟的游标状态，由外部回放驱动器在每个周期随上下文一起给出。
type ReplayStatus struct {
	TradingDay  string `json:"trading_day"`
	DayIndex    int    `json:"day_index"`
	DayCount    int    `json:"day_count"`
	CursorIndex int    `json:"cursor_index"`
	IsDayStart  bool   `json:"is_day_start"`
	IsDayEnd    bool   `json:"is_day_end"`
}
