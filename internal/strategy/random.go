package strategy

import (
	"math/rand"

	"paper-trader/internal/model"

	"github.com/shopspring/decimal"
)

// RandomParams configures a RandomStrategy.
type RandomParams struct {
	Symbol    string
	TradeProb float64 // chance per tick of placing any order
	OrderSize decimal.Decimal
	Seed      int64
}

// RandomStrategy flips a seeded coin each tick. It exists for dashboard demos
// where agents should visibly trade without any market logic.
type RandomStrategy struct {
	params RandomParams
	rng    *rand.Rand
}

func NewRandomStrategy(params RandomParams) *RandomStrategy {
	return &RandomStrategy{
		params: params,
		rng:    rand.New(rand.NewSource(params.Seed)),
	}
}

func (s *RandomStrategy) Name() string {
	return "Random " + s.params.Symbol
}

func (s *RandomStrategy) Type() string {
	return "random"
}

func (s *RandomStrategy) Evaluate(ctx Context) Decision {
	if _, ok := ctx.Prices[s.params.Symbol]; !ok {
		return Hold()
	}
	if s.rng.Float64() >= s.params.TradeProb {
		return Hold()
	}

	if s.rng.Intn(2) == 0 {
		return Decision{
			Action:   ActionBuy,
			Symbol:   s.params.Symbol,
			Type:     model.TypeMarket,
			Quantity: s.params.OrderSize,
		}
	}

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
