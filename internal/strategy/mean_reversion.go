package strategy

import (
	"paper-trader/internal/model"

	"github.com/shopspring/decimal"
)

// MeanReversionParams configures a MeanReversionStrategy.
type MeanReversionParams struct {
	Symbol    string
	Window    int             // number of ticks in the rolling mean
	Deviation decimal.Decimal // percent away from the mean that triggers a trade
	OrderSize decimal.Decimal
}

// MeanReversionStrategy keeps a rolling mean of observed prices and trades
// against deviations from it: buys when the price drops below the band, sells
// the open position when it rises above.
type MeanReversionStrategy struct {
	params MeanReversionParams
	window []decimal.Decimal
}

func NewMeanReversionStrategy(params MeanReversionParams) *MeanReversionStrategy {
	return &MeanReversionStrategy{
		params: params,
		window: make([]decimal.Decimal, 0, params.Window),
	}
}

func (s *MeanReversionStrategy) Name() string {
	return "Mean Reversion " + s.params.Symbol
}

func (s *MeanReversionStrategy) Type() string {
	return "mean_reversion"
}

func (s *MeanReversionStrategy) Evaluate(ctx Context) Decision {
	quote, ok := ctx.Prices[s.params.Symbol]
	if !ok {
		return Hold()
	}

	s.window = append(s.window, quote.Price)
	if len(s.window) > s.params.Window {
		s.window = s.window[1:]
	}
	if len(s.window) < s.params.Window {
		return Hold()
	}

	mean := s.rollingMean()
	if mean.IsZero() {
		return Hold()
	}
	hundred := decimal.NewFromInt(100)
	deviation := quote.Price.Sub(mean).Div(mean).Mul(hundred)

	if deviation.LessThanOrEqual(s.params.Deviation.Neg()) {
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

	if deviation.GreaterThanOrEqual(s.params.Deviation) {
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

func (s *MeanReversionStrategy) rollingMean() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range s.window {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(len(s.window))))
}
