package engine

import (
	"time"

	"paper-trader/internal/infrastructure"
	"paper-trader/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderRequest is what agents and API callers hand to the matching unit.
type OrderRequest struct {
	AgentID    string
	Symbol     string
	Side       model.OrderSide
	Type       model.OrderType
	Quantity   decimal.Decimal
	LimitPrice *decimal.Decimal
}

// SubmitOrder validates the request and either fills it immediately, rests
// it as PENDING (unsatisfied limit orders), or returns it REJECTED with a
// reason. Unknown agent/symbol and malformed quantities are validation
// errors, not rejections. The returned order is a copy; the fill, when it
// happens, is one atomic unit of work.
func (e *Engine) SubmitOrder(req OrderRequest) (model.Order, error) {
	e.mu.Lock()
	order, err := e.submitLocked(req, time.Now())
	events := e.takeEvents()
	e.mu.Unlock()
	e.flush(events)
	return order, err
}

func (e *Engine) submitLocked(req OrderRequest, now time.Time) (model.Order, error) {
	state, ok := e.agents[req.AgentID]
	if !ok {
		return model.Order{}, ErrUnknownAgent
	}
	price, ok := e.feed.price(req.Symbol)
	if !ok {
		return model.Order{}, ErrUnknownSymbol
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return model.Order{}, ErrInvalidQuantity
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return model.Order{}, ErrInvalidOrderSide
	}
	if req.Type != model.TypeMarket && req.Type != model.TypeLimit {
		return model.Order{}, ErrInvalidOrderType
	}
	if req.Type == model.TypeLimit && req.LimitPrice == nil {
		return model.Order{}, ErrMissingLimitPrice
	}

	order := &model.Order{
		ID:        uuid.NewString(),
		AgentID:   req.AgentID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Status:    model.StatusPending,
		CreatedAt: now,
	}
	if req.LimitPrice != nil {
		lp := *req.LimitPrice
		order.LimitPrice = &lp
	}
	state.ledger.recordOrder(order)
	e.ordersByID[order.ID] = order
	infrastructure.OrdersSubmitted.WithLabelValues(string(req.Side), string(req.Type)).Inc()

	// The reference price for affordability: the limit for resting limit
	// orders (worst acceptable fill), the live price for market orders.
	refPrice := price
	if order.Type == model.TypeLimit {
		refPrice = *order.LimitPrice
	}
	if reason, ok := e.checkBalance(state, order, refPrice); !ok {
		e.reject(order, reason)
		return *order, nil
	}

	if e.satisfied(order, price) {
		e.fill(state, order, price, now)
	} else {
		e.pending = append(e.pending, order)
	}
	return *order, nil
}

// checkBalance enforces the no-leverage, no-shorting rules: buys must be
// coverable in cash, sells must not exceed the current long position.
func (e *Engine) checkBalance(state *agentState, o *model.Order, refPrice decimal.Decimal) (model.RejectReason, bool) {
	switch o.Side {
	case model.SideBuy:
		if o.Quantity.Mul(refPrice).GreaterThan(state.ledger.cash) {
			return model.RejectInsufficientFunds, false
		}
	case model.SideSell:
		if o.Quantity.GreaterThan(state.ledger.longQuantity(o.Symbol)) {
			return model.RejectInsufficientPosition, false
		}
	}
	return "", true
}

// satisfied reports whether the order can fill at the current price. Market
// orders always can; limit orders need the price on the right side of the
// limit.
func (e *Engine) satisfied(o *model.Order, price decimal.Decimal) bool {
	if o.Type == model.TypeMarket {
		return true
	}
	if o.Side == model.SideBuy {
		return price.LessThanOrEqual(*o.LimitPrice)
	}
	return price.GreaterThanOrEqual(*o.LimitPrice)
}

// fill applies one order at the given price: ledger mutation, transaction
// append, terminal order fields, metrics, and the queued orderFilled event.
// Nothing in between is observable.
func (e *Engine) fill(state *agentState, o *model.Order, price decimal.Decimal, now time.Time) {
	tx := state.ledger.applyFill(o, price, now)

	o.Status = model.StatusFilled
	filledAt := now
	o.FilledAt = &filledAt
	filledPrice := price
	o.FilledPrice = &filledPrice

	infrastructure.OrdersFilled.Inc()
	e.queueEvent(EventOrderFilled, *o)
	e.logger.Debug("order filled",
		zap.String("order_id", o.ID),
		zap.String("agent_id", o.AgentID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("price", price.String()),
		zap.String("quantity", o.Quantity.String()),
		zap.String("realized_pnl", tx.RealizedPnL.String()),
	)
}

func (e *Engine) reject(o *model.Order, reason model.RejectReason) {
	o.Status = model.StatusRejected
	o.RejectReason = reason
	infrastructure.OrdersRejected.WithLabelValues(string(reason)).Inc()
}

// matchPending re-evaluates resting limit orders against fresh prices, in
// submission order (FIFO). A pending order whose ledger can no longer cover
// it is rejected at match time; REJECTED there is as terminal as anywhere.
func (e *Engine) matchPending(now time.Time) {
	remaining := e.pending[:0]
	for _, o := range e.pending {
		if o.Status != model.StatusPending {
			continue
		}
		price, ok := e.feed.price(o.Symbol)
		if !ok {
			remaining = append(remaining, o)
			continue
		}
		if !e.satisfied(o, price) {
			remaining = append(remaining, o)
			continue
		}

		state, ok := e.agents[o.AgentID]
		if !ok {
			continue
		}
		if reason, ok := e.checkBalance(state, o, price); !ok {
			e.reject(o, reason)
			continue
		}
		e.fill(state, o, price, now)
	}
	e.pending = remaining
}

// CancelOrder cancels a PENDING order. Terminal orders cannot be touched.
func (e *Engine) CancelOrder(orderID string) (model.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.ordersByID[orderID]
	if !ok {
		return model.Order{}, ErrUnknownOrder
	}
	if o.Status.Terminal() {
		return *o, ErrOrderTerminal
	}
	o.Status = model.StatusCancelled
	return *o, nil
}
