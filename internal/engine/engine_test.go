package engine

import (
	"testing"
	"time"

	"paper-trader/internal/model"
	"paper-trader/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dp(v float64) *decimal.Decimal {
	dec := decimal.NewFromFloat(v)
	return &dec
}

// holdStrategy never trades; used by tests that drive orders manually.
type holdStrategy struct{}

func (holdStrategy) Name() string                             { return "hold" }
func (holdStrategy) Type() string                             { return "hold" }
func (holdStrategy) Evaluate(strategy.Context) strategy.Decision { return strategy.Hold() }

// scriptedStrategy plays a fixed list of decisions, one per tick, then holds.
type scriptedStrategy struct {
	decisions []strategy.Decision
	i         int
}

func (s *scriptedStrategy) Name() string { return "scripted" }
func (s *scriptedStrategy) Type() string { return "scripted" }
func (s *scriptedStrategy) Evaluate(strategy.Context) strategy.Decision {
	if s.i >= len(s.decisions) {
		return strategy.Hold()
	}
	d := s.decisions[s.i]
	s.i++
	return d
}

// panicStrategy counts its evaluations and always panics.
type panicStrategy struct {
	calls int
}

func (s *panicStrategy) Name() string { return "panic" }
func (s *panicStrategy) Type() string { return "panic" }
func (s *panicStrategy) Evaluate(strategy.Context) strategy.Decision {
	s.calls++
	panic("strategy bug")
}

func newTestEngine(sequences map[string][]decimal.Decimal) *Engine {
	return New(Config{
		Symbols: []SymbolConfig{
			{Name: "BTC", InitialPrice: d(9000)},
			{Name: "ETH", InitialPrice: d(2800)},
		},
		TickInterval: time.Hour, // tests tick manually
	}, NewFixedSource(sequences), zap.NewNop())
}

func TestSubmitOrder_MarketBuyScenario(t *testing.T) {
	e := newTestEngine(nil)
	agent, err := e.CreateAgent("alpha", holdStrategy{}, d(10000))
	require.NoError(t, err)

	filledEvents := 0
	e.On(EventOrderFilled, func(interface{}) { filledEvents++ })

	order, err := e.SubmitOrder(OrderRequest{
		AgentID:  agent.ID,
		Symbol:   "BTC",
		Side:     model.SideBuy,
		Type:     model.TypeMarket,
		Quantity: d(1),
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusFilled, order.Status)
	require.NotNil(t, order.FilledPrice)
	assert.True(t, order.FilledPrice.Equal(d(9000)))

	got, ok := e.GetAgent(agent.ID)
	require.True(t, ok)
	assert.True(t, got.Portfolio.Cash.Equal(d(1000)))
	require.Len(t, got.Portfolio.Positions, 1)
	assert.True(t, got.Portfolio.Positions[0].Quantity.Equal(d(1)))
	assert.True(t, got.Portfolio.Positions[0].AvgEntryPrice.Equal(d(9000)))
	assert.Len(t, got.Portfolio.Transactions, 1)
	assert.Equal(t, 1, filledEvents)
}

func TestSubmitOrder_InsufficientFundsRejected(t *testing.T) {
	e := newTestEngine(nil)
	agent, _ := e.CreateAgent("broke", holdStrategy{}, d(500))

	order, err := e.SubmitOrder(OrderRequest{
		AgentID:  agent.ID,
		Symbol:   "BTC",
		Side:     model.SideBuy,
		Type:     model.TypeMarket,
		Quantity: d(1),
	})
	require.NoError(t, err, "a business rejection is not an error")

	assert.Equal(t, model.StatusRejected, order.Status)
	assert.Equal(t, model.RejectInsufficientFunds, order.RejectReason)

	got, _ := e.GetAgent(agent.ID)
	assert.True(t, got.Portfolio.Cash.Equal(d(500)), "cash untouched")
	assert.Empty(t, got.Portfolio.Transactions)
}

func TestSubmitOrder_NoNakedShorting(t *testing.T) {
	e := newTestEngine(nil)
	agent, _ := e.CreateAgent("shorter", holdStrategy{}, d(10000))

	order, err := e.SubmitOrder(OrderRequest{
		AgentID:  agent.ID,
		Symbol:   "BTC",
		Side:     model.SideSell,
		Type:     model.TypeMarket,
		Quantity: d(1),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, order.Status)
	assert.Equal(t, model.RejectInsufficientPosition, order.RejectReason)
}

func TestSubmitOrder_ValidationErrors(t *testing.T) {
	e := newTestEngine(nil)
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(10000))

	tests := []struct {
		name string
		req  OrderRequest
		want error
	}{
		{"unknown agent", OrderRequest{AgentID: "nope", Symbol: "BTC", Side: model.SideBuy, Type: model.TypeMarket, Quantity: d(1)}, ErrUnknownAgent},
		{"unknown symbol", OrderRequest{AgentID: agent.ID, Symbol: "XRP", Side: model.SideBuy, Type: model.TypeMarket, Quantity: d(1)}, ErrUnknownSymbol},
		{"zero quantity", OrderRequest{AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy, Type: model.TypeMarket, Quantity: d(0)}, ErrInvalidQuantity},
		{"negative quantity", OrderRequest{AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy, Type: model.TypeMarket, Quantity: d(-1)}, ErrInvalidQuantity},
		{"limit without price", OrderRequest{AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy, Type: model.TypeLimit, Quantity: d(1)}, ErrMissingLimitPrice},
		{"bad side", OrderRequest{AgentID: agent.ID, Symbol: "BTC", Side: "HOLD", Type: model.TypeMarket, Quantity: d(1)}, ErrInvalidOrderSide},
		{"bad type", OrderRequest{AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy, Type: "STOP", Quantity: d(1)}, ErrInvalidOrderType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.SubmitOrder(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLimitOrder_PendingThenFilledAtTickPrice(t *testing.T) {
	e := newTestEngine(map[string][]decimal.Decimal{
		"BTC": {d(9100), d(9600)},
	})
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(10000))
	_, err := e.SubmitOrder(OrderRequest{
		AgentID:  agent.ID,
		Symbol:   "BTC",
		Side:     model.SideBuy,
		Type:     model.TypeMarket,
		Quantity: d(1),
	})
	require.NoError(t, err)

	filledEvents := 0
	e.On(EventOrderFilled, func(interface{}) { filledEvents++ })

	// Sell above the market: must rest.
	order, err := e.SubmitOrder(OrderRequest{
		AgentID:    agent.ID,
		Symbol:     "BTC",
		Side:       model.SideSell,
		Type:       model.TypeLimit,
		Quantity:   d(1),
		LimitPrice: dp(9500),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, order.Status)

	e.Tick() // 9100: still below the limit
	got, _ := e.GetOrder(order.ID)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 0, filledEvents)

	e.Tick() // 9600: satisfied, fills at the tick's price
	got, _ = e.GetOrder(order.ID)
	assert.Equal(t, model.StatusFilled, got.Status)
	require.NotNil(t, got.FilledPrice)
	assert.True(t, got.FilledPrice.Equal(d(9600)), "limit orders fill at the tick price, not the limit")
	assert.Equal(t, 1, filledEvents)
}

func TestLimitOrder_ImmediateFillWhenAlreadySatisfied(t *testing.T) {
	e := newTestEngine(nil)
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(10000))

	// Buy limit above the current price fills right away.
	order, err := e.SubmitOrder(OrderRequest{
		AgentID:    agent.ID,
		Symbol:     "BTC",
		Side:       model.SideBuy,
		Type:       model.TypeLimit,
		Quantity:   d(1),
		LimitPrice: dp(9500),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, order.Status)
	assert.True(t, order.FilledPrice.Equal(d(9000)))
}

func TestLimitOrders_FIFOFillFairness(t *testing.T) {
	e := newTestEngine(map[string][]decimal.Decimal{
		"BTC": {d(9600)},
	})
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(20000))
	_, err := e.SubmitOrder(OrderRequest{
		AgentID:  agent.ID,
		Symbol:   "BTC",
		Side:     model.SideBuy,
		Type:     model.TypeMarket,
		Quantity: d(2),
	})
	require.NoError(t, err)

	first, _ := e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideSell,
		Type: model.TypeLimit, Quantity: d(1), LimitPrice: dp(9500),
	})
	second, _ := e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideSell,
		Type: model.TypeLimit, Quantity: d(1), LimitPrice: dp(9400),
	})
	require.Equal(t, model.StatusPending, first.Status)
	require.Equal(t, model.StatusPending, second.Status)

	var fillSequence []string
	e.On(EventOrderFilled, func(payload interface{}) {
		fillSequence = append(fillSequence, payload.(model.Order).ID)
	})

	e.Tick() // 9600 satisfies both

	require.Len(t, fillSequence, 2)
	assert.Equal(t, first.ID, fillSequence[0], "submission order decides the fill order")
	assert.Equal(t, second.ID, fillSequence[1])
}

func TestPendingOrder_RejectedAtMatchWhenPositionGone(t *testing.T) {
	e := newTestEngine(map[string][]decimal.Decimal{
		"BTC": {d(9600)},
	})
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(20000))
	e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy,
		Type: model.TypeMarket, Quantity: d(1),
	})

	// Two resting sells over the same single position.
	first, _ := e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideSell,
		Type: model.TypeLimit, Quantity: d(1), LimitPrice: dp(9500),
	})
	second, _ := e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideSell,
		Type: model.TypeLimit, Quantity: d(1), LimitPrice: dp(9500),
	})

	e.Tick()

	got, _ := e.GetOrder(first.ID)
	assert.Equal(t, model.StatusFilled, got.Status)
	got, _ = e.GetOrder(second.ID)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Equal(t, model.RejectInsufficientPosition, got.RejectReason)
}

func TestCancelOrder_TerminalityEnforced(t *testing.T) {
	e := newTestEngine(nil)
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(10000))

	pending, _ := e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy,
		Type: model.TypeLimit, Quantity: d(1), LimitPrice: dp(8000),
	})
	require.Equal(t, model.StatusPending, pending.Status)

	cancelled, err := e.CancelOrder(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	// Terminal statuses cannot be left.
	_, err = e.CancelOrder(pending.ID)
	assert.ErrorIs(t, err, ErrOrderTerminal)

	filled, _ := e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy,
		Type: model.TypeMarket, Quantity: d(1),
	})
	require.Equal(t, model.StatusFilled, filled.Status)
	_, err = e.CancelOrder(filled.ID)
	assert.ErrorIs(t, err, ErrOrderTerminal)

	_, err = e.CancelOrder("nope")
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestCancelledOrder_NeverFills(t *testing.T) {
	e := newTestEngine(map[string][]decimal.Decimal{
		"BTC": {d(7000)},
	})
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(10000))

	order, _ := e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy,
		Type: model.TypeLimit, Quantity: d(1), LimitPrice: dp(8000),
	})
	e.CancelOrder(order.ID)

	e.Tick() // 7000 would satisfy the limit

	got, _ := e.GetOrder(order.ID)
	assert.Equal(t, model.StatusCancelled, got.Status)
	agentView, _ := e.GetAgent(agent.ID)
	assert.Empty(t, agentView.Portfolio.Transactions)
}

func TestStrategyRuntime_SubmitsDecisions(t *testing.T) {
	e := newTestEngine(nil)
	agent, _ := e.CreateAgent("alpha", &scriptedStrategy{
		decisions: []strategy.Decision{
			{Action: strategy.ActionBuy, Symbol: "BTC", Type: model.TypeMarket, Quantity: d(1)},
		},
	}, d(10000))

	e.Tick()

	got, _ := e.GetAgent(agent.ID)
	assert.Len(t, got.Portfolio.Transactions, 1)
	assert.Equal(t, 1, got.Performance.TotalTrades)
}

func TestStrategyRuntime_IdleAgentsNotEvaluated(t *testing.T) {
	e := newTestEngine(nil)
	strat := &scriptedStrategy{
		decisions: []strategy.Decision{
			{Action: strategy.ActionBuy, Symbol: "BTC", Type: model.TypeMarket, Quantity: d(1)},
		},
	}
	agent, _ := e.CreateAgent("alpha", strat, d(10000))
	_, err := e.SetAgentStatus(agent.ID, model.AgentIdle)
	require.NoError(t, err)

	e.Tick()

	got, _ := e.GetAgent(agent.ID)
	assert.Empty(t, got.Portfolio.Transactions)
	assert.Equal(t, 0, strat.i)
}

func TestStrategyRuntime_FaultIsolation(t *testing.T) {
	e := newTestEngine(nil)
	broken := &panicStrategy{}
	a, _ := e.CreateAgent("broken", broken, d(10000))
	b, _ := e.CreateAgent("healthy", &scriptedStrategy{
		decisions: []strategy.Decision{
			{Action: strategy.ActionBuy, Symbol: "BTC", Type: model.TypeMarket, Quantity: d(1)},
		},
	}, d(10000))

	statusEvents := 0
	e.On(EventAgentStatusChanged, func(interface{}) { statusEvents++ })

	assert.NotPanics(t, func() { e.Tick() })

	gotA, _ := e.GetAgent(a.ID)
	assert.Equal(t, model.AgentError, gotA.Status)
	assert.Equal(t, 1, statusEvents)

	// The healthy agent still got its evaluation and its fill.
	gotB, _ := e.GetAgent(b.ID)
	assert.Len(t, gotB.Portfolio.Transactions, 1)

	// ERROR agents are excluded until manually reset.
	e.Tick()
	assert.Equal(t, 1, broken.calls)

	_, err := e.SetAgentStatus(a.ID, model.AgentActive)
	require.NoError(t, err)
	e.Tick()
	assert.Equal(t, 2, broken.calls)
}

func TestAgentStatus_Transitions(t *testing.T) {
	e := newTestEngine(nil)
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(1000))

	_, err := e.SetAgentStatus(agent.ID, model.AgentIdle)
	assert.NoError(t, err)
	_, err = e.SetAgentStatus(agent.ID, model.AgentActive)
	assert.NoError(t, err)
	_, err = e.SetAgentStatus(agent.ID, model.AgentStopped)
	assert.NoError(t, err)

	// STOPPED is terminal.
	for _, status := range []model.AgentStatus{model.AgentActive, model.AgentIdle, model.AgentError} {
		_, err = e.SetAgentStatus(agent.ID, status)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}

	_, err = e.SetAgentStatus("nope", model.AgentIdle)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestCreateAgent_Validation(t *testing.T) {
	e := newTestEngine(nil)

	_, err := e.CreateAgent("alpha", nil, d(1000))
	assert.ErrorIs(t, err, ErrNilStrategy)

	_, err = e.CreateAgent("alpha", holdStrategy{}, d(-1))
	assert.ErrorIs(t, err, ErrInvalidCash)

	created := 0
	e.On(EventAgentCreated, func(interface{}) { created++ })
	agent, err := e.CreateAgent("alpha", holdStrategy{}, d(1000))
	require.NoError(t, err)
	assert.Equal(t, model.AgentActive, agent.Status)
	assert.Equal(t, 1, created)
}

func TestEngine_EventOrderWithinTick(t *testing.T) {
	e := newTestEngine(map[string][]decimal.Decimal{
		"BTC": {d(9600)},
	})
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(20000))
	e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy,
		Type: model.TypeMarket, Quantity: d(1),
	})
	e.SubmitOrder(OrderRequest{
		AgentID: agent.ID, Symbol: "BTC", Side: model.SideSell,
		Type: model.TypeLimit, Quantity: d(1), LimitPrice: dp(9500),
	})

	var sequence []string
	e.On(EventPricesUpdated, func(interface{}) { sequence = append(sequence, "prices") })
	e.On(EventOrderFilled, func(interface{}) { sequence = append(sequence, "fill") })

	e.Tick()

	assert.Equal(t, []string{"prices", "fill"}, sequence)
}

func TestEngine_HandlerMayReenter(t *testing.T) {
	e := newTestEngine(nil)
	agent, _ := e.CreateAgent("alpha", holdStrategy{}, d(20000))

	// An orderFilled subscriber that immediately submits a follow-up order,
	// as a dashboard action handler might.
	reentered := false
	e.On(EventOrderFilled, func(payload interface{}) {
		if reentered {
			return
		}
		reentered = true
		_, err := e.SubmitOrder(OrderRequest{
			AgentID: agent.ID, Symbol: "ETH", Side: model.SideBuy,
			Type: model.TypeMarket, Quantity: d(1),
		})
		assert.NoError(t, err)
	})

	done := make(chan struct{})
	go func() {
		e.SubmitOrder(OrderRequest{
			AgentID: agent.ID, Symbol: "BTC", Side: model.SideBuy,
			Type: model.TypeMarket, Quantity: d(1),
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant submit deadlocked")
	}

	got, _ := e.GetAgent(agent.ID)
	assert.Len(t, got.Portfolio.Transactions, 2)
}

func TestEngine_IdempotentStart(t *testing.T) {
	e := New(Config{
		Symbols:      []SymbolConfig{{Name: "BTC", InitialPrice: d(9000)}},
		TickInterval: 5 * time.Millisecond,
	}, NewRandomWalkSource(1), zap.NewNop())

	ticks := make(chan struct{}, 1024)
	e.On(EventPricesUpdated, func(interface{}) { ticks <- struct{}{} })

	e.Start()
	e.Start() // second call must not add a second timer
	time.Sleep(40 * time.Millisecond)
	e.Stop()
	e.Stop() // idempotent too

	ticked := len(ticks)
	assert.Greater(t, ticked, 0, "engine should have ticked")

	// No timer survives Stop.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, ticked, len(ticks))
}

func TestEngine_ConservationOfValue(t *testing.T) {
	e := New(Config{
		Symbols: []SymbolConfig{
			{Name: "BTC", InitialPrice: d(9000)},
			{Name: "ETH", InitialPrice: d(2800)},
		},
		TickInterval: time.Hour,
	}, NewRandomWalkSource(99), zap.NewNop())

	initial := d(50000)
	a, _ := e.CreateAgent("momo", strategyForConservation("BTC"), initial)
	b, _ := e.CreateAgent("rando", strategyForConservation("ETH"), initial)

	for i := 0; i < 300; i++ {
		e.Tick()
	}

	tolerance := decimal.New(1, -6)
	for _, id := range []string{a.ID, b.ID} {
		got, ok := e.GetAgent(id)
		require.True(t, ok)

		// cash + entry value of open positions == initial + realized PnL
		lhs := got.Portfolio.Cash
		for _, pos := range got.Portfolio.Positions {
			lhs = lhs.Add(pos.Quantity.Mul(pos.AvgEntryPrice))
		}
		rhs := initial.Add(got.Performance.RealizedPnL)

		diff := lhs.Sub(rhs).Abs()
		assert.True(t, diff.LessThan(tolerance),
			"value leaked for %s: lhs=%s rhs=%s", got.Name, lhs, rhs)
		assert.True(t, got.Portfolio.Cash.GreaterThanOrEqual(decimal.Zero), "cash must never go negative")
	}
}

func strategyForConservation(symbol string) strategy.Strategy {
	return strategy.NewRandomStrategy(strategy.RandomParams{
		Symbol:    symbol,
		TradeProb: 0.6,
		OrderSize: d(0.3),
		Seed:      7,
	})
}
