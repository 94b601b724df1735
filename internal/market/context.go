package market

// IntradaySnapshot 是分钟级特征快照（由外部行情采集器计算）。
type IntradaySnapshot struct {
	Ret5       float64 `json:"ret_5"`
	Ret20      float64 `json:"ret_20"`
	ATR14      float64 `json:"atr_14"`
	VolRatio20 float64 `json:"vol_ratio_20"`
}

// DailySnapshot 是日线特征快照。
type DailySnapshot struct {
	SMA20        float64 `json:"sma_20"`
	SMA60        float64 `json:"sma_60"`
	RSI14        float64 `json:"rsi_14"`
	Range20DPct  float64 `json:"range_20d_pct"`
}

// PositionState 是当前标的的持仓与账户状态。
type PositionState struct {
	Shares              int     `json:"shares"`
	AvgCost             float64 `json:"avg_cost"`
	UnrealizedPnL       float64 `json:"unrealized_pnl"`
	CashCNY             float64 `json:"cash_cny"`
	MaxGrossExposurePct float64 `json:"max_gross_exposure_pct"`
}

// Holding 描述记忆态里一个已持有的标的。
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity int     `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// MemoryState 携带跨周期的持仓记忆（除当前标的以外的仓位）。
type MemoryState struct {
	Holdings []Holding `json:"holdings"`
}

// CandidateSet 是候选标的排名，SelectedSymbol 非空时优先于 Context.Symbol。
type CandidateSet struct {
	Symbols        []string `json:"symbols"`
	SelectedSymbol string   `json:"selected_symbol,omitempty"`
}

// GuardrailConfig 是风控护栏参数，缺省值见 DefaultGuardrails。
type GuardrailConfig struct {
	MaxSymbolConcentrationPct float64 `json:"max_symbol_concentration_pct" toml:"max_symbol_concentration_pct"`
	MinCashReservePct         float64 `json:"min_cash_reserve_pct" toml:"min_cash_reserve_pct"`
	TurnoverThrottlePct       float64 `json:"turnover_throttle_pct" toml:"turnover_throttle_pct"`
	MaxPositionCount          int     `json:"max_position_count" toml:"max_position_count"`
	OpeningPhaseMode          bool    `json:"opening_phase_mode" toml:"opening_phase_mode"`
	OpeningPhaseMaxLots       int     `json:"opening_phase_max_lots" toml:"opening_phase_max_lots"`
	OpeningPhaseMaxConfidence float64 `json:"opening_phase_max_confidence" toml:"opening_phase_max_confidence"`
}

// DefaultGuardrails 返回护栏缺省配置。
func DefaultGuardrails() GuardrailConfig {
	return GuardrailConfig{
		MaxSymbolConcentrationPct: 30,
		MinCashReservePct:         10,
		TurnoverThrottlePct:       20,
		MaxPositionCount:          5,
		OpeningPhaseMode:          false,
		OpeningPhaseMaxLots:       2,
		OpeningPhaseMaxConfidence: 0.6,
	}
}

// Merge 用显式设置过的覆盖值填充缺省配置。零值视为未设置。
func (g GuardrailConfig) Merge(override *GuardrailConfig) GuardrailConfig {
	if override == nil {
		return g
	}
	out := g
	if override.MaxSymbolConcentrationPct > 0 {
		out.MaxSymbolConcentrationPct = override.MaxSymbolConcentrationPct
	}
	if override.MinCashReservePct > 0 {
		out.MinCashReservePct = override.MinCashReservePct
	}
	if override.TurnoverThrottlePct > 0 {
		out.TurnoverThrottlePct = override.TurnoverThrottlePct
	}
	if override.MaxPositionCount > 0 {
		out.MaxPositionCount = override.MaxPositionCount
	}
	if override.OpeningPhaseMode {
		out.OpeningPhaseMode = true
		if override.OpeningPhaseMaxLots > 0 {
			out.OpeningPhaseMaxLots = override.OpeningPhaseMaxLots
		}
		if override.OpeningPhaseMaxConfidence > 0 {
			out.OpeningPhaseMaxConfidence = override.OpeningPhaseMaxConfidence
		}
	}
	return out
}

// ExternalDecision 是外部（LLM）建议的决策，已由 llm 包校验后注入。
type ExternalDecision struct {
	Action     string  `json:"action"`
	Symbol     string  `json:"symbol"`
	Confidence float64 `json:"confidence"`
	Quantity   int     `json:"quantity"`
	Reasoning  string  `json:"reasoning"`
}

// Context 是一次决策周期的完整市场上下文，引擎只读消费。
type Context struct {
	Symbol         string            `json:"symbol"`
	Intraday       IntradaySnapshot  `json:"intraday"`
	Daily          DailySnapshot     `json:"daily"`
	Price          float64           `json:"price"`
	Position       PositionState     `json:"position_state"`
	Memory         MemoryState       `json:"memory_state"`
	Candidates     CandidateSet      `json:"candidate_set"`
	Guardrails     *GuardrailConfig  `json:"runtime_config,omitempty"`
	LLMDecision    *ExternalDecision `json:"llm_decision,omitempty"`
	MarketOverview string            `json:"market_overview,omitempty"`
	NewsDigest     string            `json:"news_digest,omitempty"`
}

// HeldQuantity 返回指定标的的当前持仓数量（含当前标的与记忆态）。
func (c *Context) HeldQuantity(symbol string) int {
	if symbol == c.Symbol && c.Position.Shares > 0 {
		return c.Position.Shares
	}
	for _, h := range c.Memory.Holdings {
		if h.Symbol == symbol && h.Quantity > 0 {
			return h.Quantity
		}
	}
	return 0
}

// HeldSymbolCount 返回当前持有的不同标的数量。
func (c *Context) HeldSymbolCount() int {
	count := 0
	seen := map[string]bool{}
	if c.Position.Shares > 0 {
		seen[c.Symbol] = true
		count++
	}
	for _, h := range c.Memory.Holdings {
		if h.Quantity <= 0 || seen[h.Symbol] {
			continue
		}
		seen[h.Symbol] = true
		count++
	}
	return count
}

// TotalEquity 估算总权益 = 现金 + 当前标的市值 + 记忆态持仓市值（按成本近似）。
func (c *Context) TotalEquity() float64 {
	equity := c.Position.CashCNY
	if c.Position.Shares > 0 && c.Price > 0 {
		equity += float64(c.Position.Shares) * c.Price
	}
	for _, h := range c.Memory.Holdings {
		if h.Quantity > 0 && h.AvgCost > 0 {
			equity += float64(h.Quantity) * h.AvgCost
		}
	}
	return equity
}
