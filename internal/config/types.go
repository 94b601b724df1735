package config

import (
	"strings"

	"arena/internal/market"
)

// Config 是 Arena 的主配置载体。
type Config struct {
	App        AppConfig              `toml:"app"`
	Arena      ArenaConfig            `toml:"arena"`
	Ledger     LedgerConfig           `toml:"ledger"`
	Guardrails market.GuardrailConfig `toml:"guardrails"`
	Audit      AuditConfig            `toml:"audit"`
	Traders    TradersConfig          `toml:"traders"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// ArenaConfig 控制周期调度。
type ArenaConfig struct {
	CycleMs           int  `toml:"cycle_ms"`            // 定时节拍间隔
	DecisionEveryBars int  `toml:"decision_every_bars"` // 回放模式下每 N 根 K 线决策一次
	MaxHistory        int  `toml:"max_history"`         // 每个交易员保留的决策条数
	StartPaused       bool `toml:"start_paused"`
	ExternalPace      bool `toml:"external_pace"` // true 时由外部 step 驱动, 不起定时器

	BarsDir string `toml:"bars_dir"` // 回放 K 线数据目录, 每个标的一份 <symbol>.json
}

// LedgerConfig 控制账本持久化。
type LedgerConfig struct {
	Backend        string  `toml:"backend"` // "file" | "sqlite"
	Dir            string  `toml:"dir"`
	SQLitePath     string  `toml:"sqlite_path"`
	InitialBalance float64 `toml:"initial_balance"`
	CommissionRate float64 `toml:"commission_rate"`
	ReportPath     string  `toml:"report_path"`
}

type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	LogPath string `toml:"log_path"`
}

type TradersConfig struct {
	ManifestPath string `toml:"manifest_path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
