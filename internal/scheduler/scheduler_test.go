package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"arena/internal/engine"
	"arena/internal/market"
	"arena/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifest(id string) *types.TraderManifest {
	m := &types.TraderManifest{
		TraderID:     id,
		TraderName:   id,
		AIModel:      "test-model",
		TradingStyle: "momentum_trend",
		RiskProfile:  "balanced",
	}
	m.Resolve()
	return m
}

func buyContext() *market.Context {
	return &market.Context{
		Symbol: "600519",
		Price:  10,
		Intraday: market.IntradaySnapshot{Ret5: 0.004},
		Daily:    market.DailySnapshot{SMA20: 105, SMA60: 100, RSI14: 58},
		Position: market.PositionState{CashCNY: 100_000},
	}
}

func passEvaluate(ctx context.Context, trader *types.TraderManifest, state CycleState) (*CycleInput, error) {
	return &CycleInput{Context: buyContext(), CycleNumber: state.CallCount + 1}, nil
}

func TestScheduler_StepOnce(t *testing.T) {
	s := New(Config{
		Traders:  []*types.TraderManifest{manifest("alpha"), manifest("beta")},
		Evaluate: passEvaluate,
	})

	s.StepOnce(context.Background())
	s.StepOnce(context.Background())

	assert.Equal(t, 2, s.GetCallCount("alpha"))
	assert.Equal(t, 2, s.GetCallCount("beta"))

	m := s.GetMetrics()
	assert.Equal(t, 4, m.TotalCycles)
	assert.Equal(t, 4, m.SuccessfulCycles)
	assert.Equal(t, 0, m.FailedCycles)

	hist := s.GetLatestDecisions("alpha", 10)
	require.Len(t, hist, 2)
	// 新的在前
	assert.Equal(t, 2, hist[0].CycleNumber)
	assert.Equal(t, 1, hist[1].CycleNumber)
	assert.Equal(t, "alpha", hist[0].TraderID)
}

func TestScheduler_FailureIsolation(t *testing.T) {
	evaluate := func(ctx context.Context, trader *types.TraderManifest, state CycleState) (*CycleInput, error) {
		if trader.TraderID == "broken" {
			return nil, errors.New("上下文构建失败")
		}
		return passEvaluate(ctx, trader, state)
	}
	s := New(Config{
		Traders:  []*types.TraderManifest{manifest("alpha"), manifest("broken")},
		Evaluate: evaluate,
	})

	s.StepOnce(context.Background())

	assert.Equal(t, 1, s.GetCallCount("alpha"))
	assert.Equal(t, 0, s.GetCallCount("broken"))
	assert.Empty(t, s.GetLatestDecisions("broken", 10))
	assert.Len(t, s.GetLatestDecisions("alpha", 10), 1)

	m := s.GetMetrics()
	assert.Equal(t, 2, m.TotalCycles)
	assert.Equal(t, 1, m.SuccessfulCycles)
	assert.Equal(t, 1, m.FailedCycles)
}

func TestScheduler_NilInputCountsAsFailure(t *testing.T) {
	evaluate := func(ctx context.Context, trader *types.TraderManifest, state CycleState) (*CycleInput, error) {
		return nil, nil
	}
	s := New(Config{Traders: []*types.TraderManifest{manifest("alpha")}, Evaluate: evaluate})

	s.StepOnce(context.Background())

	m := s.GetMetrics()
	assert.Equal(t, 1, m.FailedCycles)
	assert.Equal(t, 0, s.GetCallCount("alpha"))
}

func TestScheduler_PauseResume(t *testing.T) {
	s := New(Config{Traders: []*types.TraderManifest{manifest("alpha")}, Evaluate: passEvaluate})

	assert.False(t, s.GetState().Running)
	s.Resume()
	assert.True(t, s.GetState().Running)
	s.Resume() // 幂等
	assert.True(t, s.GetState().Running)
	s.Pause()
	assert.False(t, s.GetState().Running)
	s.Pause()
	assert.False(t, s.GetState().Running)

	// 暂停不影响手动步进。
	s.StepOnce(context.Background())
	assert.Equal(t, 1, s.GetCallCount("alpha"))
}

func TestScheduler_SetCycleMs(t *testing.T) {
	s := New(Config{Evaluate: passEvaluate, CycleMs: 60_000})
	s.SetCycleMs(500)
	assert.Equal(t, 500, s.GetState().CycleMs)
	s.SetCycleMs(0) // 非法值忽略
	assert.Equal(t, 500, s.GetState().CycleMs)
}

func TestScheduler_Reset(t *testing.T) {
	s := New(Config{Traders: []*types.TraderManifest{manifest("alpha")}, Evaluate: passEvaluate})
	s.StepOnce(context.Background())
	require.Equal(t, 1, s.GetCallCount("alpha"))

	s.Reset()

	assert.Equal(t, 0, s.GetCallCount("alpha"))
	assert.Empty(t, s.GetLatestDecisions("alpha", 10))
	assert.Equal(t, Metrics{}, s.GetMetrics())
}

func TestScheduler_SetTradersRetainsTrackedHistory(t *testing.T) {
	s := New(Config{
		Traders:  []*types.TraderManifest{manifest("alpha"), manifest("beta")},
		Evaluate: passEvaluate,
	})
	s.StepOnce(context.Background())

	// beta 被移除, gamma 新加入。
	s.SetTraders([]*types.TraderManifest{manifest("alpha"), manifest("gamma")})
	s.StepOnce(context.Background())

	assert.Equal(t, 2, s.GetCallCount("alpha"))
	assert.Equal(t, 1, s.GetCallCount("gamma"))
	// 被移除交易员的历史保留到下一次 Reset。
	assert.Equal(t, 1, s.GetCallCount("beta"))
	assert.Len(t, s.GetLatestDecisions("beta", 10), 1)
}

func TestScheduler_HistoryBounded(t *testing.T) {
	s := New(Config{
		Traders:    []*types.TraderManifest{manifest("alpha")},
		Evaluate:   passEvaluate,
		MaxHistory: 3,
	})
	for i := 0; i < 5; i++ {
		s.StepOnce(context.Background())
	}

	hist := s.GetLatestDecisions("alpha", 0)
	require.Len(t, hist, 3)
	// 最旧的两条被挤出。
	assert.Equal(t, 5, hist[0].CycleNumber)
	assert.Equal(t, 3, hist[2].CycleNumber)
	assert.Equal(t, 5, s.GetCallCount("alpha"))
}

func TestScheduler_BusDelivery(t *testing.T) {
	s := New(Config{Traders: []*types.TraderManifest{manifest("alpha")}, Evaluate: passEvaluate})
	ch := s.Bus().Subscribe("test", 8)

	s.StepOnce(context.Background())

	select {
	case evt := <-ch:
		assert.Equal(t, "alpha", evt.Trader.TraderID)
		require.NotNil(t, evt.Record)
		assert.Equal(t, 1, evt.Record.CycleNumber)
		assert.Equal(t, engine.ActionBuy, evt.Record.Primary().Action)
	case <-time.After(time.Second):
		t.Fatal("事件未送达")
	}
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("slow", 1)
	rec := &engine.Record{CycleNumber: 1, TraderID: "alpha"}

	bus.Publish(Event{Record: rec})
	bus.Publish(Event{Record: rec}) // 队列已满, 丢弃而不阻塞

	assert.Len(t, ch, 1)
}

func TestBus_CloseDrainsSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("a", 1)
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)
	bus.Publish(Event{Record: &engine.Record{}}) // 关闭后为空操作
	bus.Close()                                  // 幂等
}

func TestExternalPaceClock_TickDrivesCycle(t *testing.T) {
	clock := NewExternalPaceClock()
	s := New(Config{
		Traders:  []*types.TraderManifest{manifest("alpha")},
		Evaluate: passEvaluate,
		Clock:    clock,
	})
	s.Start(context.Background())

	clock.Tick() // 未 Resume, 节拍被忽略
	assert.Equal(t, 0, s.GetCallCount("alpha"))

	s.Resume()
	clock.Tick()
	clock.Tick()
	assert.Equal(t, 2, s.GetCallCount("alpha"))

	s.Pause()
	clock.Tick()
	assert.Equal(t, 2, s.GetCallCount("alpha"))

	s.Stop()
	clock.Tick() // Stop 之后无回调
	assert.Equal(t, 2, s.GetCallCount("alpha"))
}
