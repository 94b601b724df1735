// Package llm 校验并解析外部模型给出的决策建议。
// 引擎本身不调用模型；上游拿到原始输出后先经过这里，
// 校验失败时直接丢弃建议，引擎退回启发式信号。
package llm

import (
	"fmt"
	"strings"

	"arena/internal/market"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const decisionSchemaJSON = `{
  "type": "object",
  "required": ["action", "symbol"],
  "properties": {
    "action": {"type": "string", "enum": ["buy", "sell", "hold"]},
    "symbol": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "quantity": {"type": "integer", "minimum": 0},
    "reasoning": {"type": "string"}
  }
}`

var decisionSchema = jsonschema.MustCompileString("external_decision.json", decisionSchemaJSON)

// ExtractJSONObject 从模型原始输出里提取首个平衡的 JSON 对象。
// 模型经常把 JSON 包在 markdown 代码块或闲聊文本里。
func ExtractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			// 逐字节跟踪转义状态, 连续反斜杠不会误判字符串边界。
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1]), true
			}
		}
	}
	return "", false
}

// ParseDecision 解析并校验一段模型输出，返回规范化的外部决策。
// 任何校验失败都返回错误，调用方应丢弃建议而不是让坏数据进引擎。
func ParseDecision(raw string) (*market.ExternalDecision, error) {
	text, ok := ExtractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("输出中未找到 JSON 对象")
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("JSON 无法解析")
	}
	var doc any
	parsed := gjson.Parse(text)
	doc = parsed.Value()
	if err := decisionSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("决策 schema 校验失败: %w", err)
	}

	action := strings.ToLower(strings.TrimSpace(parsed.Get("action").String()))
	symbol := strings.TrimSpace(parsed.Get("symbol").String())
	dec := &market.ExternalDecision{
		Action:     action,
		Symbol:     symbol,
		Confidence: parsed.Get("confidence").Float(),
		Quantity:   int(parsed.Get("quantity").Int()),
		Reasoning:  strings.TrimSpace(parsed.Get("reasoning").String()),
	}
	if dec.Confidence < 0 || dec.Confidence > 1 {
		return nil, fmt.Errorf("confidence 超出范围: %v", dec.Confidence)
	}
	if dec.Quantity < 0 {
		return nil, fmt.Errorf("quantity 不能为负: %d", dec.Quantity)
	}
	return dec, nil
}
