package engine

import (
	"time"

	"paper-trader/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ledger is the accounting surface of one agent. It is mutated only by the
// matching unit, under the engine lock; everything exposed outside is a copy.
type ledger struct {
	cash         decimal.Decimal
	initialCash  decimal.Decimal
	positions    map[string]*model.Position
	orders       []*model.Order
	transactions []model.Transaction
}

func newLedger(initialCash decimal.Decimal) *ledger {
	return &ledger{
		cash:        initialCash,
		initialCash: initialCash,
		positions:   make(map[string]*model.Position),
	}
}

func (l *ledger) recordOrder(o *model.Order) {
	l.orders = append(l.orders, o)
}

// longQuantity returns the currently held quantity for the symbol; zero when
// there is no position row.
func (l *ledger) longQuantity(symbol string) decimal.Decimal {
	if p, ok := l.positions[symbol]; ok {
		return p.Quantity
	}
	return decimal.Zero
}

// applyFill applies one filled order to cash and positions and appends the
// matching transaction. The caller must already have validated the fill; the
// mutation is all-or-nothing.
func (l *ledger) applyFill(o *model.Order, price decimal.Decimal, now time.Time) model.Transaction {
	notional := o.Quantity.Mul(price)
	realized := decimal.Zero

	switch o.Side {
	case model.SideBuy:
		l.cash = l.cash.Sub(notional)
		pos, ok := l.positions[o.Symbol]
		if !ok {
			l.positions[o.Symbol] = &model.Position{
				Symbol:        o.Symbol,
				Quantity:      o.Quantity,
				AvgEntryPrice: price,
			}
		} else {
			// Weighted-average cost basis on increases.
			newQty := pos.Quantity.Add(o.Quantity)
			pos.AvgEntryPrice = pos.Quantity.Mul(pos.AvgEntryPrice).
				Add(notional).
				Div(newQty)
			pos.Quantity = newQty
		}

	case model.SideSell:
		pos := l.positions[o.Symbol]
		realized = price.Sub(pos.AvgEntryPrice).Mul(o.Quantity)
		l.cash = l.cash.Add(notional)
		pos.Quantity = pos.Quantity.Sub(o.Quantity)
		if pos.Quantity.IsZero() {
			// Zero-quantity rows are removed, not kept.
			delete(l.positions, o.Symbol)
		}
	}

	tx := model.Transaction{
		ID:          uuid.NewString(),
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Quantity:    o.Quantity,
		Price:       price,
		Timestamp:   now,
		RealizedPnL: realized,
	}
	l.transactions = append(l.transactions, tx)
	return tx
}

// snapshot copies the ledger into a portfolio view, marking positions to
// market with the given prices. TotalValue is always recomputed here.
func (l *ledger) snapshot(prices map[string]model.MarketPrice) model.Portfolio {
	positions := make([]model.Position, 0, len(l.positions))
	total := l.cash
	for _, pos := range l.positions {
		positions = append(positions, *pos)
		if quote, ok := prices[pos.Symbol]; ok {
			total = total.Add(pos.Quantity.Mul(quote.Price))
		} else {
			total = total.Add(pos.Quantity.Mul(pos.AvgEntryPrice))
		}
	}

	orders := make([]model.Order, 0, len(l.orders))
	for _, o := range l.orders {
		orders = append(orders, *o)
	}
	transactions := make([]model.Transaction, len(l.transactions))
	copy(transactions, l.transactions)

	return model.Portfolio{
		Cash:         l.cash,
		Positions:    positions,
		Orders:       orders,
		Transactions: transactions,
		TotalValue:   total,
	}
}

// performance is derived from the transaction log on every call. Win rate
// counts only closing (SELL) transactions, the ones that realize PnL.
func (l *ledger) performance() model.AgentPerformance {
	wins, closes := 0, 0
	realized := decimal.Zero
	for _, tx := range l.transactions {
		if tx.Side == model.SideSell {
			closes++
			if tx.RealizedPnL.IsPositive() {
				wins++
			}
		}
		realized = realized.Add(tx.RealizedPnL)
	}

	winRate := 0.0
	if closes > 0 {
		winRate = float64(wins) / float64(closes)
	}
	return model.AgentPerformance{
		TotalTrades: len(l.transactions),
		WinRate:     winRate,
		RealizedPnL: realized,
	}
}
