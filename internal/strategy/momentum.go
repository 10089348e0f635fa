package strategy

import (
	"paper-trader/internal/model"

	"github.com/shopspring/decimal"
)

// MomentumParams configures a MomentumStrategy.
type MomentumParams struct {
	Symbol    string
	Threshold decimal.Decimal // 24h change percent that triggers a trade
	OrderSize decimal.Decimal // quantity per order
}

// MomentumStrategy buys when the 24h change rises beyond the threshold and
// sells the open position when it falls below the negative threshold.
type MomentumStrategy struct {
	params MomentumParams
}

func NewMomentumStrategy(params MomentumParams) *MomentumStrategy {
	return &MomentumStrategy{params: params}
}

func (s *MomentumStrategy) Name() string {
	return "Momentum " + s.params.Symbol
}

func (s *MomentumStrategy) Type() string {
	return "momentum"
}

func (s *MomentumStrategy) Evaluate(ctx Context) Decision {
	quote, ok := ctx.Prices[s.params.Symbol]
	if !ok {
		return Hold()
	}

	if quote.Change24h.GreaterThanOrEqual(s.params.Threshold) {
		cost := s.params.OrderSize.Mul(quote.Price)
		if ctx.Agent.Portfolio.Cash.LessThan(cost) {
			return Hold()
		}
		return Decision{
			Action:   ActionBuy,
			Symbol:   s.params.Symbol,
			Type:     model.TypeMarket,
			Quantity: s.params.OrderSize,
		}
	}

	if quote.Change24h.LessThanOrEqual(s.params.Threshold.Neg()) {
		held := heldQuantity(ctx.Agent, s.params.Symbol)
		if held.LessThanOrEqual(decimal.Zero) {
			return Hold()
		}
		qty := s.params.OrderSize
		if held.LessThan(qty) {
			qty = held
		}
		return Decision{
			Action:   ActionSell,
			Symbol:   s.params.Symbol,
			Type:     model.TypeMarket,
			Quantity: qty,
		}
	}

	return Hold()
}

func heldQuantity(agent model.TradingAgent, symbol string) decimal.Decimal {
	for _, p := range agent.Portfolio.Positions {
		if p.Symbol == symbol {
			return p.Quantity
		}
	}
	return decimal.Zero
}
