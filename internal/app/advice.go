package app

import (
	"sync"

	"arena/internal/llm"
	"arena/internal/market"
)

// adviceBox 缓存外部模型提交的决策建议：每个交易员一条，
// 新建议覆盖旧建议，取走即清除。
type adviceBox struct {
	mu      sync.Mutex
	pending map[string]*market.ExternalDecision
}

func newAdviceBox() *adviceBox {
	return &adviceBox{pending: make(map[string]*market.ExternalDecision)}
}

// submit 校验原始模型输出并缓存为该交易员的待用建议。
// 校验失败的输出直接丢弃, 不会进入引擎。
func (b *adviceBox) submit(traderID, raw string) (*market.ExternalDecision, error) {
	dec, err := llm.ParseDecision(raw)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.pending[traderID] = dec
	b.mu.Unlock()
	return dec, nil
}

// take 取走并清除该交易员的待用建议，没有时返回 nil。
func (b *adviceBox) take(traderID string) *market.ExternalDecision {
	b.mu.Lock()
	defer b.mu.Unlock()
	dec := b.pending[traderID]
	delete(b.pending, traderID)
	return dec
}
