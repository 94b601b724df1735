package types

import "strings"

// TradingStyle 是交易员的策略取向，加载清单时解析一次，之后不再按字符串分支。
type TradingStyle int

const (
	StyleUnspecified TradingStyle = iota
	StyleMomentumTrend
	StyleMeanReversion
)

func ParseTradingStyle(s string) TradingStyle {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "momentum_trend", "momentum":
		return StyleMomentumTrend
	case "mean_reversion", "reversion":
		return StyleMeanReversion
	default:
		return StyleUnspecified
	}
}

func (s TradingStyle) String() string {
	switch s {
	case StyleMomentumTrend:
		return "momentum_trend"
	case StyleMeanReversion:
		return "mean_reversion"
	default:
		return "unspecified"
	}
}

// RiskProfile 是交易员的风险偏好。
type RiskProfile int

const (
	RiskAggressive RiskProfile = iota
	RiskBalanced
	RiskConservative
)

func ParseRiskProfile(s string) RiskProfile {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conservative":
		return RiskConservative
	case "balanced":
		return RiskBalanced
	default:
		return RiskAggressive
	}
}

func (r RiskProfile) String() string {
	switch r {
	case RiskConservative:
		return "conservative"
	case RiskBalanced:
		return "balanced"
	default:
		return "aggressive"
	}
}

// TraderManifest 描述一个交易员的身份与策略配置，加载后不可变。
type TraderManifest struct {
	TraderID      string   `json:"trader_id" yaml:"trader_id"`
	TraderName    string   `json:"trader_name" yaml:"trader_name"`
	AIModel       string   `json:"ai_model" yaml:"ai_model"`
	TradingStyle  string   `json:"trading_style" yaml:"trading_style"`
	RiskProfile   string   `json:"risk_profile" yaml:"risk_profile"`
	StylePromptCN string   `json:"style_prompt_cn,omitempty" yaml:"style_prompt_cn"`
	Personality   string   `json:"personality,omitempty" yaml:"personality"`
	StockPool     []string `json:"stock_pool,omitempty" yaml:"stock_pool"`

	// 解析后的枚举值，Load 时填充。
	Style TradingStyle `json:"-" yaml:"-"`
	Risk  RiskProfile  `json:"-" yaml:"-"`
}

// Resolve 把字符串字段解析为枚举，注册表加载后调用一次。
func (m *TraderManifest) Resolve() {
	m.Style = ParseTradingStyle(m.TradingStyle)
	m.Risk = ParseRiskProfile(m.RiskProfile)
}
