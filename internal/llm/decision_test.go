package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	t.Run("markdown代码块", func(t *testing.T) {
		raw := "分析如下:\n```json\n{\"action\": \"buy\", \"symbol\": \"600519\"}\n```\n以上。"
		text, ok := ExtractJSONObject(raw)
		require.True(t, ok)
		assert.Equal(t, `{"action": "buy", "symbol": "600519"}`, text)
	})
	t.Run("嵌套对象取首个平衡块", func(t *testing.T) {
		raw := `前缀 {"a": {"b": 1}, "c": 2} 后缀 {"d": 3}`
		text, ok := ExtractJSONObject(raw)
		require.True(t, ok)
		assert.Equal(t, `{"a": {"b": 1}, "c": 2}`, text)
	})
	t.Run("字符串里的大括号不计深度", func(t *testing.T) {
		raw := `{"reasoning": "注意 } 这个符号", "action": "hold"}`
		text, ok := ExtractJSONObject(raw)
		require.True(t, ok)
		assert.Equal(t, raw, text)
	})
	t.Run("转义反斜杠后正常关闭字符串", func(t *testing.T) {
		raw := `{"reasoning": "路径 C:\\", "action": "hold"}`
		text, ok := ExtractJSONObject(raw)
		require.True(t, ok)
		assert.Equal(t, raw, text)
	})
	t.Run("转义引号不结束字符串", func(t *testing.T) {
		raw := `{"reasoning": "他说 \"买\" 了", "action": "hold"}`
		text, ok := ExtractJSONObject(raw)
		require.True(t, ok)
		assert.Equal(t, raw, text)
	})
	t.Run("没有对象", func(t *testing.T) {
		_, ok := ExtractJSONObject("纯文本, 没有决策")
		assert.False(t, ok)
	})
	t.Run("不平衡", func(t *testing.T) {
		_, ok := ExtractJSONObject(`{"action": "buy"`)
		assert.False(t, ok)
	})
}

func TestParseDecision(t *testing.T) {
	t.Run("完整决策", func(t *testing.T) {
		raw := "```json\n" + `{
  "action": "buy",
  "symbol": " 600519 ",
  "confidence": 0.72,
  "quantity": 200,
  "reasoning": "动量走强"
}` + "\n```"
		dec, err := ParseDecision(raw)
		require.NoError(t, err)
		assert.Equal(t, "buy", dec.Action)
		assert.Equal(t, "600519", dec.Symbol)
		assert.InDelta(t, 0.72, dec.Confidence, 1e-9)
		assert.Equal(t, 200, dec.Quantity)
		assert.Equal(t, "动量走强", dec.Reasoning)
	})
	t.Run("缺少必填字段", func(t *testing.T) {
		_, err := ParseDecision(`{"action": "buy"}`)
		assert.Error(t, err)
	})
	t.Run("非法动作", func(t *testing.T) {
		_, err := ParseDecision(`{"action": "short", "symbol": "600519"}`)
		assert.Error(t, err)
	})
	t.Run("confidence超界", func(t *testing.T) {
		_, err := ParseDecision(`{"action": "buy", "symbol": "600519", "confidence": 1.5}`)
		assert.Error(t, err)
	})
	t.Run("quantity为负", func(t *testing.T) {
		_, err := ParseDecision(`{"action": "buy", "symbol": "600519", "quantity": -100}`)
		assert.Error(t, err)
	})
	t.Run("无JSON", func(t *testing.T) {
		_, err := ParseDecision("模型今天不想输出 JSON")
		assert.Error(t, err)
	})
	t.Run("可选字段缺省", func(t *testing.T) {
		dec, err := ParseDecision(`{"action": "hold", "symbol": "600519"}`)
		require.NoError(t, err)
		assert.Equal(t, "hold", dec.Action)
		assert.Zero(t, dec.Confidence)
		assert.Zero(t, dec.Quantity)
	})
}
