package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Arena.validate(); err != nil {
		return err
	}
	if err := c.Ledger.validate(); err != nil {
		return err
	}
	if err := c.validateGuardrails(); err != nil {
		return err
	}
	if err := c.Traders.validate(); err != nil {
		return err
	}
	return nil
}

func (a *ArenaConfig) validate() error {
	if a.CycleMs < 200 {
		return fmt.Errorf("arena.cycle_ms 不能小于 200")
	}
	if a.DecisionEveryBars <= 0 {
		return fmt.Errorf("arena.decision_every_bars 必须 > 0")
	}
	if a.MaxHistory < 1 || a.MaxHistory > 1000 {
		return fmt.Errorf("arena.max_history 必须在 [1,1000] 内")
	}
	return nil
}

func (l *LedgerConfig) validate() error {
	backend := strings.ToLower(strings.TrimSpace(l.Backend))
	switch backend {
	case "file":
		if strings.TrimSpace(l.Dir) == "" {
			return fmt.Errorf("ledger.backend=file 时 ledger.dir 不能为空")
		}
	case "sqlite":
		if strings.TrimSpace(l.SQLitePath) == "" {
			return fmt.Errorf("ledger.backend=sqlite 时 ledger.sqlite_path 不能为空")
		}
	default:
		return fmt.Errorf("ledger.backend 只支持 file 或 sqlite, 当前为 %q", l.Backend)
	}
	l.Backend = backend
	if l.InitialBalance <= 0 {
		return fmt.Errorf("ledger.initial_balance 必须 > 0")
	}
	if l.CommissionRate < 0 || l.CommissionRate > 0.01 {
		return fmt.Errorf("ledger.commission_rate 必须在 [0, 0.01] 内")
	}
	return nil
}

func (c *Config) validateGuardrails() error {
	g := c.Guardrails
	if g.MaxSymbolConcentrationPct <= 0 || g.MaxSymbolConcentrationPct > 100 {
		return fmt.Errorf("guardrails.max_symbol_concentration_pct 必须在 (0,100] 内")
	}
	if g.MinCashReservePct < 0 || g.MinCashReservePct >= 100 {
		return fmt.Errorf("guardrails.min_cash_reserve_pct 必须在 [0,100) 内")
	}
	if g.TurnoverThrottlePct <= 0 || g.TurnoverThrottlePct > 100 {
		return fmt.Errorf("guardrails.turnover_throttle_pct 必须在 (0,100] 内")
	}
	if g.MaxPositionCount <= 0 {
		return fmt.Errorf("guardrails.max_position_count 必须 > 0")
	}
	if g.OpeningPhaseMode {
		if g.OpeningPhaseMaxLots <= 0 {
			return fmt.Errorf("guardrails.opening_phase_max_lots 必须 > 0")
		}
		if g.OpeningPhaseMaxConfidence <= 0 || g.OpeningPhaseMaxConfidence > 1 {
			return fmt.Errorf("guardrails.opening_phase_max_confidence 必须在 (0,1] 内")
		}
	}
	return nil
}

func (t *TradersConfig) validate() error {
	if strings.TrimSpace(t.ManifestPath) == "" {
		return fmt.Errorf("traders.manifest_path 不能为空")
	}
	return nil
}
