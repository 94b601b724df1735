package registry

import (
	"os"
	"path/filepath"
	"testing"

	"arena/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestYAML = `traders:
  - trader_id: alpha
    trader_name: 阿尔法
    ai_model: model-a
    trading_style: momentum_trend
    risk_profile: balanced
    stock_pool: ["600519", "000858"]
  - trader_id: beta
    ai_model: model-b
    trading_style: mean_reversion
    risk_profile: conservative
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistry_LoadsManifest(t *testing.T) {
	r, err := NewRegistry(writeManifest(t, manifestYAML))
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	require.Len(t, snap.Traders, 2)

	alpha, ok := r.Trader("alpha")
	require.True(t, ok)
	assert.Equal(t, "阿尔法", alpha.TraderName)
	assert.Equal(t, types.StyleMomentumTrend, alpha.Style)
	assert.Equal(t, types.RiskBalanced, alpha.Risk)
	assert.Equal(t, []string{"600519", "000858"}, alpha.StockPool)

	// 缺省名回落到 ID, 风格枚举解析完成。
	beta, ok := r.Trader("beta")
	require.True(t, ok)
	assert.Equal(t, "beta", beta.TraderName)
	assert.Equal(t, types.StyleMeanReversion, beta.Style)
	assert.Equal(t, types.RiskConservative, beta.Risk)

	_, ok = r.Trader("ghost")
	assert.False(t, ok)
}

func TestNewRegistry_RejectsBadManifests(t *testing.T) {
	t.Run("路径为空", func(t *testing.T) {
		_, err := NewRegistry("  ")
		assert.Error(t, err)
	})
	t.Run("文件不存在", func(t *testing.T) {
		_, err := NewRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
	t.Run("重复ID", func(t *testing.T) {
		_, err := NewRegistry(writeManifest(t, `traders:
  - trader_id: alpha
  - trader_id: alpha
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "重复的 trader_id")
	})
	t.Run("缺少ID", func(t *testing.T) {
		_, err := NewRegistry(writeManifest(t, `traders:
  - trader_name: 无名
`))
		assert.Error(t, err)
	})
	t.Run("空清单", func(t *testing.T) {
		_, err := NewRegistry(writeManifest(t, "traders: []\n"))
		assert.Error(t, err)
	})
	t.Run("未知字段", func(t *testing.T) {
		_, err := NewRegistry(writeManifest(t, `traders:
  - trader_id: alpha
    unknown_field: 1
`))
		assert.Error(t, err)
	})
}

func TestNormalizeTraders_TrimsAndResolves(t *testing.T) {
	out, err := normalizeTraders([]*types.TraderManifest{
		nil,
		{TraderID: "  alpha  ", TradingStyle: "momentum"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "alpha", out[0].TraderID)
	assert.Equal(t, "alpha", out[0].TraderName)
	assert.Equal(t, types.StyleMomentumTrend, out[0].Style)
}

func TestRegistry_SnapshotIsIsolatedSlice(t *testing.T) {
	r, err := NewRegistry(writeManifest(t, manifestYAML))
	require.NoError(t, err)

	traders := r.Traders()
	traders[0] = nil

	again := r.Traders()
	require.NotNil(t, again[0])
	assert.Equal(t, "alpha", again[0].TraderID)
}
