package config

import "arena/internal/market"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9991"
	defaultAppLogPath      = "data/logs/arena.log"
	defaultCycleMs         = 60000
	defaultDecisionBars    = 5
	defaultMaxHistory      = 50
	defaultBarsDir         = "data/bars"
	defaultLedgerBackend   = "file"
	defaultLedgerDir       = "data/ledgers"
	defaultLedgerSQLite    = "data/db/ledgers.db"
	defaultInitialBalance  = 1_000_000
	defaultCommissionRate  = 0.0005
	defaultReportPath      = "data/reports/equity.html"
	defaultAuditLogPath    = "data/logs/decisions.jsonl"
	defaultTradersManifest = "configs/traders.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Arena.applyDefaults(keys)
	c.Ledger.applyDefaults(keys)
	c.applyGuardrailDefaults()
	c.Audit.applyDefaults(keys)
	c.Traders.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (a *ArenaConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "arena.cycle_ms",
			need:  func() bool { return a.CycleMs <= 0 },
			apply: func() { a.CycleMs = defaultCycleMs },
		},
		fieldDefault{
			key:   "arena.decision_every_bars",
			need:  func() bool { return a.DecisionEveryBars <= 0 },
			apply: func() { a.DecisionEveryBars = defaultDecisionBars },
		},
		fieldDefault{
			key:   "arena.max_history",
			need:  func() bool { return a.MaxHistory <= 0 },
			apply: func() { a.MaxHistory = defaultMaxHistory },
		},
		stringFieldDefault("arena.bars_dir", &a.BarsDir, defaultBarsDir),
	)
}

func (l *LedgerConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ledger.backend", &l.Backend, defaultLedgerBackend),
		stringFieldDefault("ledger.dir", &l.Dir, defaultLedgerDir),
		stringFieldDefault("ledger.sqlite_path", &l.SQLitePath, defaultLedgerSQLite),
		stringFieldDefault("ledger.report_path", &l.ReportPath, defaultReportPath),
		fieldDefault{
			key:   "ledger.initial_balance",
			need:  func() bool { return l.InitialBalance <= 0 },
			apply: func() { l.InitialBalance = defaultInitialBalance },
		},
		fieldDefault{
			key:   "ledger.commission_rate",
			need:  func() bool { return l.CommissionRate <= 0 },
			apply: func() { l.CommissionRate = defaultCommissionRate },
		},
	)
}

// 护栏缺省值来自 market.DefaultGuardrails，零值字段沿用缺省。
func (c *Config) applyGuardrailDefaults() {
	override := c.Guardrails
	c.Guardrails = market.DefaultGuardrails().Merge(&override)
}

func (a *AuditConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("audit.enabled", &a.Enabled, true),
		stringFieldDefault("audit.log_path", &a.LogPath, defaultAuditLogPath),
	)
}

func (t *TradersConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("traders.manifest_path", &t.ManifestPath, defaultTradersManifest),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && *target == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
