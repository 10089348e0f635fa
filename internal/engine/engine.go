package engine

import (
	"sync"
	"time"

	"paper-trader/internal/infrastructure"
	"paper-trader/internal/model"
	"paper-trader/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config seeds a new engine instance.
type Config struct {
	Symbols      []SymbolConfig
	TickInterval time.Duration
}

// agentState is the engine-internal record for one agent: its public fields,
// its strategy instance, and its ledger.
type agentState struct {
	id        string
	name      string
	status    model.AgentStatus
	strat     strategy.Strategy
	ledger    *ledger
	createdAt time.Time
}

// Engine is the paper-trading simulation core: price feed, matching unit,
// per-agent ledgers, agent registry with strategy runtime, and the event
// bus. One instance is constructed per process (or per test) and passed by
// reference to every consumer; there is no package-level singleton.
//
// All mutation happens under one mutex. Events are queued while the lock is
// held and delivered after it is released, so a subscriber may safely call
// back into the engine (e.g. submit an order from an orderFilled handler).
type Engine struct {
	mu     sync.Mutex
	logger *zap.Logger
	bus    *Bus
	feed   *priceFeed

	agents     map[string]*agentState
	agentOrder []string
	ordersByID map[string]*model.Order
	pending    []*model.Order

	queued []queuedEvent

	tickInterval time.Duration
	running      bool
	stopCh       chan struct{}
	doneCh       chan struct{}
}

type queuedEvent struct {
	event   EventType
	payload interface{}
}

func New(cfg Config, source PriceSource, logger *zap.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	return &Engine{
		logger:       logger,
		bus:          NewBus(logger),
		feed:         newPriceFeed(cfg.Symbols, source, logger),
		agents:       make(map[string]*agentState),
		ordersByID:   make(map[string]*model.Order),
		tickInterval: cfg.TickInterval,
	}
}

// On registers an event handler on the engine's bus.
func (e *Engine) On(event EventType, fn Handler) *Subscription {
	return e.bus.On(event, fn)
}

// Off removes an event handler.
func (e *Engine) Off(sub *Subscription) {
	e.bus.Off(sub)
}

// ListenerCount reports the number of handlers for an event. Dashboard
// consumers use it to detect an already-wired engine before calling Start.
func (e *Engine) ListenerCount(event EventType) int {
	return e.bus.ListenerCount(event)
}

// Start begins the periodic tick. Calling it again while running is a no-op;
// there is never more than one tick timer.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.run(e.stopCh, e.doneCh)
	e.logger.Info("engine started", zap.Duration("tick_interval", e.tickInterval))
}

// Stop halts the tick loop and waits for any in-flight tick to complete, so
// no fill is ever left half-applied. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
	e.logger.Info("engine stopped")
}

func (e *Engine) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick advances the simulation one step: new prices, pending limit order
// matching, then one strategy evaluation per ACTIVE agent. Tests and tools
// call it directly for deterministic runs.
func (e *Engine) Tick() {
	now := time.Now()

	e.mu.Lock()
	snapshot := e.feed.tick(now)
	e.queueEvent(EventPricesUpdated, snapshot)
	e.matchPending(now)
	e.evaluateAgents(now)
	events := e.takeEvents()
	e.mu.Unlock()

	infrastructure.TicksTotal.Inc()
	e.flush(events)
}

// evaluateAgents runs each ACTIVE agent's strategy against the fresh prices.
// A panicking strategy demotes only its own agent to ERROR; the remaining
// agents still get their evaluation.
func (e *Engine) evaluateAgents(now time.Time) {
	prices := e.feed.priceMap()
	for _, id := range e.agentOrder {
		state := e.agents[id]
		if state.status != model.AgentActive {
			continue
		}
		decision, ok := e.evaluateOne(state, prices)
		if !ok {
			e.setStatusLocked(state, model.AgentError)
			continue
		}
		if decision.Action == strategy.ActionHold {
			continue
		}

		side := model.SideBuy
		if decision.Action == strategy.ActionSell {
			side = model.SideSell
		}
		req := OrderRequest{
			AgentID:    state.id,
			Symbol:     decision.Symbol,
			Side:       side,
			Type:       decision.Type,
			Quantity:   decision.Quantity,
			LimitPrice: decision.LimitPrice,
		}
		if _, err := e.submitLocked(req, now); err != nil {
			e.logger.Warn("strategy produced invalid order request",
				zap.String("agent_id", state.id),
				zap.String("strategy", state.strat.Name()),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) evaluateOne(state *agentState, prices map[string]model.MarketPrice) (decision strategy.Decision, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("strategy panicked, agent demoted to ERROR",
				zap.String("agent_id", state.id),
				zap.String("strategy", state.strat.Name()),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()
	decision = state.strat.Evaluate(strategy.Context{
		Agent:  e.agentView(state, prices),
		Prices: prices,
	})
	return decision, true
}

// CreateAgent registers a new agent with its own ledger, ACTIVE by default.
func (e *Engine) CreateAgent(name string, strat strategy.Strategy, initialCash decimal.Decimal) (model.TradingAgent, error) {
	if strat == nil {
		return model.TradingAgent{}, ErrNilStrategy
	}
	if initialCash.IsNegative() {
		return model.TradingAgent{}, ErrInvalidCash
	}

	e.mu.Lock()
	state := &agentState{
		id:        uuid.NewString(),
		name:      name,
		status:    model.AgentActive,
		strat:     strat,
		ledger:    newLedger(initialCash),
		createdAt: time.Now(),
	}
	e.agents[state.id] = state
	e.agentOrder = append(e.agentOrder, state.id)
	view := e.agentView(state, e.feed.priceMap())
	e.queueEvent(EventAgentCreated, view)
	events := e.takeEvents()
	e.mu.Unlock()

	infrastructure.ActiveAgents.Inc()
	e.flush(events)
	return view, nil
}

// SetAgentStatus applies a manual status change. ACTIVE and IDLE are freely
// interchangeable, ERROR can be reset manually, STOPPED is terminal.
func (e *Engine) SetAgentStatus(id string, status model.AgentStatus) (model.TradingAgent, error) {
	e.mu.Lock()
	state, ok := e.agents[id]
	if !ok {
		e.mu.Unlock()
		return model.TradingAgent{}, ErrUnknownAgent
	}
	if !validTransition(state.status, status) {
		view := e.agentView(state, e.feed.priceMap())
		e.mu.Unlock()
		return view, ErrInvalidTransition
	}
	e.setStatusLocked(state, status)
	view := e.agentView(state, e.feed.priceMap())
	events := e.takeEvents()
	e.mu.Unlock()

	e.flush(events)
	return view, nil
}

func validTransition(from, to model.AgentStatus) bool {
	if from == to {
		return false
	}
	if from == model.AgentStopped {
		return false
	}
	if to == model.AgentStopped {
		return true
	}
	switch from {
	case model.AgentActive:
		return to == model.AgentIdle || to == model.AgentError
	case model.AgentIdle:
		return to == model.AgentActive
	case model.AgentError:
		// Manual reset.
		return to == model.AgentActive || to == model.AgentIdle
	}
	return false
}

func (e *Engine) setStatusLocked(state *agentState, status model.AgentStatus) {
	wasActive := state.status == model.AgentActive
	state.status = status
	if wasActive && status != model.AgentActive {
		infrastructure.ActiveAgents.Dec()
	} else if !wasActive && status == model.AgentActive {
		infrastructure.ActiveAgents.Inc()
	}
	e.queueEvent(EventAgentStatusChanged, e.agentView(state, e.feed.priceMap()))
}

// GetAgent returns a snapshot of one agent.
func (e *Engine) GetAgent(id string) (model.TradingAgent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.agents[id]
	if !ok {
		return model.TradingAgent{}, false
	}
	return e.agentView(state, e.feed.priceMap()), true
}

// GetAllAgents returns snapshots of every agent in creation order.
func (e *Engine) GetAllAgents() []model.TradingAgent {
	e.mu.Lock()
	defer e.mu.Unlock()
	prices := e.feed.priceMap()
	out := make([]model.TradingAgent, 0, len(e.agentOrder))
	for _, id := range e.agentOrder {
		out = append(out, e.agentView(e.agents[id], prices))
	}
	return out
}

// GetAllMarketPrices returns the current price table snapshot.
func (e *Engine) GetAllMarketPrices() []model.MarketPrice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feed.snapshot()
}

// GetOrder returns a snapshot of one order by ID.
func (e *Engine) GetOrder(id string) (model.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.ordersByID[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

func (e *Engine) agentView(state *agentState, prices map[string]model.MarketPrice) model.TradingAgent {
	return model.TradingAgent{
		ID:           state.id,
		Name:         state.name,
		StrategyType: state.strat.Type(),
		StrategyName: state.strat.Name(),
		Status:       state.status,
		Portfolio:    state.ledger.snapshot(prices),
		Performance:  state.ledger.performance(),
		CreatedAt:    state.createdAt,
	}
}

func (e *Engine) queueEvent(event EventType, payload interface{}) {
	e.queued = append(e.queued, queuedEvent{event: event, payload: payload})
}

func (e *Engine) takeEvents() []queuedEvent {
	events := e.queued
	e.queued = nil
	return events
}

func (e *Engine) flush(events []queuedEvent) {
	for _, ev := range events {
		e.bus.Emit(ev.event, ev.payload)
	}
}
