package engine

import (
	"math"

	"paper-trader/internal/model"
	"paper-trader/internal/strategy"

	"github.com/shopspring/decimal"
)

// Backtester replays historical candles through a strategy with the same
// decision contract the live engine uses, tracking cost basis so realized
// PnL is exact rather than approximated from sale proceeds.
type Backtester struct {
	strategy    strategy.Strategy
	balance     decimal.Decimal
	position    decimal.Decimal
	avgCost     decimal.Decimal
	feeRate     decimal.Decimal
	slippage    decimal.Decimal
	reference   decimal.Decimal
	refDecay    decimal.Decimal
	trades      []model.SimulatedTrade
	equityCurve []decimal.Decimal
	returns     []float64
}

func NewBacktester(strat strategy.Strategy, initialBalance decimal.Decimal) *Backtester {
	return &Backtester{
		strategy: strat,
		balance:  initialBalance,
		position: decimal.Zero,
		avgCost:  decimal.Zero,
		feeRate:  decimal.NewFromFloat(0.001),  // 0.1% fee
		slippage: decimal.NewFromFloat(0.0005), // 0.05% slippage
		refDecay: decimal.NewFromFloat(0.001),
		trades:   make([]model.SimulatedTrade, 0),
		returns:  make([]float64, 0),
	}
}

func (b *Backtester) Run(candles []model.KLine) model.BacktestReport {
	initialBalance := b.balance
	prevEquity := initialBalance

	for _, candle := range candles {
		decision := b.strategy.Evaluate(b.context(candle))

		if decision.Action == strategy.ActionBuy && b.balance.GreaterThan(decimal.Zero) {
			b.buy(candle)
		} else if decision.Action == strategy.ActionSell && b.position.GreaterThan(decimal.Zero) {
			b.sell(candle)
		}

		currentEquity := b.balance.Add(b.position.Mul(candle.Close))
		b.equityCurve = append(b.equityCurve, currentEquity)

		ret, _ := currentEquity.Sub(prevEquity).Div(prevEquity).Float64()
		b.returns = append(b.returns, ret)
		prevEquity = currentEquity
	}

	// Final liquidation at last price
	if b.position.GreaterThan(decimal.Zero) && len(candles) > 0 {
		b.sell(candles[len(candles)-1])
	}

	totalReturn := b.balance.Sub(initialBalance).Div(initialBalance)
	maxDD, _ := b.calculateMaxDrawdown().Float64()
	winRate, totalProfit := b.calculateStats()

	return model.BacktestReport{
		StrategyName:   b.strategy.Name(),
		TotalTrades:    len(b.trades),
		WinRate:        winRate,
		TotalReturn:    totalReturn,
		TotalProfit:    totalProfit,
		MaxDrawdown:    maxDD,
		SharpeRatio:    b.calculateSharpeRatio(),
		InitialBalance: initialBalance,
		FinalBalance:   b.balance,
		TradesLog:      b.trades,
	}
}

// context builds the same evaluation view live agents get, backed by the
// backtester's own balance and position.
func (b *Backtester) context(candle model.KLine) strategy.Context {
	if b.reference.IsZero() {
		b.reference = candle.Close
	} else {
		b.reference = b.reference.Add(candle.Close.Sub(b.reference).Mul(b.refDecay))
	}
	change := decimal.Zero
	if b.reference.IsPositive() {
		change = candle.Close.Sub(b.reference).Div(b.reference).Mul(decimal.NewFromInt(100))
	}

	positions := []model.Position{}
	if b.position.GreaterThan(decimal.Zero) {
		positions = append(positions, model.Position{
			Symbol:        candle.Symbol,
			Quantity:      b.position,
			AvgEntryPrice: b.avgCost,
		})
	}

	return strategy.Context{
		Agent: model.TradingAgent{
			Name:   "backtest",
			Status: model.AgentActive,
			Portfolio: model.Portfolio{
				Cash:       b.balance,
				Positions:  positions,
				TotalValue: b.balance.Add(b.position.Mul(candle.Close)),
			},
		},
		Prices: map[string]model.MarketPrice{
			candle.Symbol: {
				Symbol:    candle.Symbol,
				Price:     candle.Close,
				Change24h: change,
				UpdatedAt: candle.Timestamp,
			},
		},
	}
}

func (b *Backtester) buy(candle model.KLine) {
	price := candle.Close.Mul(decimal.NewFromInt(1).Add(b.slippage))
	qty := b.balance.Div(price.Mul(decimal.NewFromInt(1).Add(b.feeRate)))

	if qty.LessThanOrEqual(decimal.Zero) {
		return
	}

	fee := qty.Mul(price).Mul(b.feeRate)
	newQty := b.position.Add(qty)
	b.avgCost = b.position.Mul(b.avgCost).Add(qty.Mul(price)).Div(newQty)
	b.balance = b.balance.Sub(qty.Mul(price)).Sub(fee)
	b.position = newQty

	b.trades = append(b.trades, model.SimulatedTrade{
		Time:   candle.Timestamp,
		Symbol: candle.Symbol,
		Side:   "buy",
		Price:  price,
		Size:   qty,
		Fee:    fee,
	})
}

func (b *Backtester) sell(candle model.KLine) {
	price := candle.Close.Mul(decimal.NewFromInt(1).Sub(b.slippage))
	saleValue := b.position.Mul(price)
	fee := saleValue.Mul(b.feeRate)
	pnl := price.Sub(b.avgCost).Mul(b.position).Sub(fee)

	b.balance = b.balance.Add(saleValue).Sub(fee)

	b.trades = append(b.trades, model.SimulatedTrade{
		Time:   candle.Timestamp,
		Symbol: candle.Symbol,
		Side:   "sell",
		Price:  price,
		Size:   b.position,
		Fee:    fee,
		PnL:    pnl,
	})

	b.position = decimal.Zero
	b.avgCost = decimal.Zero
}

func (b *Backtester) calculateMaxDrawdown() decimal.Decimal {
	if len(b.equityCurve) == 0 {
		return decimal.Zero
	}
	maxEquity := b.equityCurve[0]
	maxDD := decimal.Zero
	for _, equity := range b.equityCurve {
		if equity.GreaterThan(maxEquity) {
			maxEquity = equity
		}
		dd := maxEquity.Sub(equity).Div(maxEquity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

func (b *Backtester) calculateStats() (float64, decimal.Decimal) {
	wins := 0
	sellCount := 0
	totalProfit := decimal.Zero
	for _, t := range b.trades {
		if t.Side == "sell" {
			sellCount++
			if t.PnL.GreaterThan(decimal.Zero) {
				wins++
			}
			totalProfit = totalProfit.Add(t.PnL)
		}
	}

	if sellCount == 0 {
		return 0, decimal.Zero
	}
	return float64(wins) / float64(sellCount), totalProfit
}

func (b *Backtester) calculateSharpeRatio() float64 {
	if len(b.returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range b.returns {
		sum += r
	}
	avgReturn := sum / float64(len(b.returns))

	var sumSqDiff float64
	for _, r := range b.returns {
		diff := r - avgReturn
		sumSqDiff += diff * diff
	}
	stdDev := math.Sqrt(sumSqDiff / float64(len(b.returns)))

	if stdDev == 0 {
		return 0
	}

	return avgReturn / stdDev
}
