package engine

import "time"

// 动作常量。引擎输出只有三种动作，风控降级一律落到 hold。
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
)

// LotSize 是 A 股最小成交单位（一手 100 股），所有数量都是它的整数倍。
const LotSize = 100

// Decision 是单次周期产出的具体交易动作。
type Decision struct {
	Action            string   `json:"action"`
	Symbol            string   `json:"symbol"`
	Quantity          int      `json:"quantity"`
	RequestedQuantity int      `json:"requested_quantity"`
	Price             float64  `json:"price"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	RealizedPnL       *float64 `json:"realized_pnl,omitempty"`
	Executed          bool     `json:"executed"`
	FeePaid           float64  `json:"fee_paid,omitempty"`
}

// Record 是引擎每周期的完整输出，产出后不可变，只追加进历史。
type Record struct {
	Timestamp        time.Time  `json:"timestamp"`
	CycleNumber      int        `json:"cycle_number"`
	TraderID         string     `json:"trader_id"`
	Decisions        []Decision `json:"decisions"`
	ReasoningStepsCN []string   `json:"reasoning_steps_cn"`
	CandidateCoins   []string   `json:"candidate_coins"`
	Success          bool       `json:"success"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// Primary 返回首个（唯一的）决策。记录损坏时返回零值 hold。
func (r *Record) Primary() Decision {
	if len(r.Decisions) == 0 {
		return Decision{Action: ActionHold}
	}
	return r.Decisions[0]
}
