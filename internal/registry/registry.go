// Package registry 管理交易员清单：从 YAML 加载、校验、
// 并在清单文件变化时热重载通知监听者。
package registry

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"arena/internal/logger"
	"arena/internal/types"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileConfig 映射清单文件的顶层结构。
type FileConfig struct {
	Traders []*types.TraderManifest `yaml:"traders"`
}

// Snapshot 是某一版清单的不可变视图。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Traders  []*types.TraderManifest
}

// ChangeListener 在清单重载后触发。
type ChangeListener func(Snapshot)

// Registry 持有当前清单并监听文件变化。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("registry: 清单路径不能为空")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取交易员清单失败: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			// 坏清单不覆盖上一版，保持服务继续运行。
			logger.Errorf("交易员清单重载失败: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// OnChange 注册重载监听者。
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Snapshot 返回当前清单快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Traders 返回当前清单中的全部交易员。
func (r *Registry) Traders() []*types.TraderManifest {
	return r.Snapshot().Traders
}

// Trader 按 ID 查找。
func (r *Registry) Trader(id string) (*types.TraderManifest, bool) {
	id = strings.TrimSpace(id)
	for _, t := range r.Traders() {
		if t.TraderID == id {
			return t, true
		}
	}
	return nil, false
}

func (r *Registry) reload() error {
	cfg, err := readManifestFile(r.path)
	if err != nil {
		return err
	}
	traders, err := normalizeTraders(cfg.Traders)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Traders:  traders,
	}
	r.mu.Unlock()
	logger.Infof("交易员清单: 从 %s 加载 %d 个交易员", filepath.Base(r.path), len(traders))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("清单监听者")
			cb(snap)
		}(fn)
	}
}

func normalizeTraders(raw []*types.TraderManifest) ([]*types.TraderManifest, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]*types.TraderManifest, 0, len(raw))
	for i, t := range raw {
		if t == nil {
			continue
		}
		t.TraderID = strings.TrimSpace(t.TraderID)
		if t.TraderID == "" {
			return nil, fmt.Errorf("第 %d 个交易员缺少 trader_id", i+1)
		}
		if seen[t.TraderID] {
			return nil, fmt.Errorf("重复的 trader_id: %s", t.TraderID)
		}
		seen[t.TraderID] = true
		if strings.TrimSpace(t.TraderName) == "" {
			t.TraderName = t.TraderID
		}
		t.Resolve()
		if t.Style == types.StyleUnspecified && strings.TrimSpace(t.TradingStyle) != "" {
			logger.Warnf("交易员 %s 的 trading_style=%q 无法识别, 按默认风格处理", t.TraderID, t.TradingStyle)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("清单中没有可用的交易员")
	}
	return out, nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Traders:  make([]*types.TraderManifest, len(src.Traders)),
	}
	copy(dst.Traders, src.Traders)
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func readManifestFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("读取清单文件失败: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("解析清单文件失败: %w", err)
	}
	return cfg, nil
}
