package strategy

import (
	"paper-trader/internal/model"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Context is what a strategy sees on each evaluation: a snapshot of its own
// agent and the full price table for the current tick.
type Context struct {
	Agent  model.TradingAgent
	Prices map[string]model.MarketPrice
}

// Decision is zero or one proposed action. ActionHold means do nothing; any
// other action is forwarded to the matching unit as an order request.
type Decision struct {
	Action     Action
	Symbol     string
	Type       model.OrderType
	Quantity   decimal.Decimal
	LimitPrice *decimal.Decimal
}

// Hold is the no-op decision.
func Hold() Decision {
	return Decision{Action: ActionHold}
}

type Strategy interface {
	Name() string
	Type() string
	Evaluate(ctx Context) Decision
}
