package processor

import (
	"sync"
	"time"

	"paper-trader/internal/engine"
	"paper-trader/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CandleProcessor aggregates simulated price ticks into 1m candles and keeps
// a bounded in-memory history per symbol for chart views and backtests.
// Volume comes from filled order quantities within the window.
type CandleProcessor struct {
	mu         sync.Mutex
	logger     *zap.Logger
	period     time.Duration
	maxHistory int
	current    map[string]*model.KLine
	history    map[string][]model.KLine
	subs       []*engine.Subscription
}

func NewCandleProcessor(logger *zap.Logger) *CandleProcessor {
	return &CandleProcessor{
		logger:     logger,
		period:     time.Minute,
		maxHistory: 500,
		current:    make(map[string]*model.KLine),
		history:    make(map[string][]model.KLine),
	}
}

// Attach subscribes the processor to the engine's event bus.
func (p *CandleProcessor) Attach(e *engine.Engine) {
	p.subs = append(p.subs,
		e.On(engine.EventPricesUpdated, func(payload interface{}) {
			prices, ok := payload.([]model.MarketPrice)
			if !ok {
				p.logger.Error("unexpected pricesUpdated payload type")
				return
			}
			p.onPrices(prices)
		}),
		e.On(engine.EventOrderFilled, func(payload interface{}) {
			order, ok := payload.(model.Order)
			if !ok {
				p.logger.Error("unexpected orderFilled payload type")
				return
			}
			p.onFill(order)
		}),
	)
	p.logger.Info("candle processor attached")
}

// Detach removes the processor's bus subscriptions.
func (p *CandleProcessor) Detach(e *engine.Engine) {
	for _, sub := range p.subs {
		e.Off(sub)
	}
	p.subs = nil
}

func (p *CandleProcessor) onPrices(prices []model.MarketPrice) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, quote := range prices {
		window := quote.UpdatedAt.Truncate(p.period)
		candle, ok := p.current[quote.Symbol]
		if !ok || candle.Timestamp.Before(window) {
			if ok {
				p.rollLocked(quote.Symbol, candle)
			}
			p.current[quote.Symbol] = &model.KLine{
				Symbol:    quote.Symbol,
				Period:    "1m",
				Open:      quote.Price,
				High:      quote.Price,
				Low:       quote.Price,
				Close:     quote.Price,
				Volume:    decimal.Zero,
				Timestamp: window,
			}
			continue
		}

		if quote.Price.GreaterThan(candle.High) {
			candle.High = quote.Price
		}
		if quote.Price.LessThan(candle.Low) {
			candle.Low = quote.Price
		}
		candle.Close = quote.Price
	}
}

func (p *CandleProcessor) onFill(order model.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candle, ok := p.current[order.Symbol]
	if !ok {
		return
	}
	candle.Volume = candle.Volume.Add(order.Quantity)
}

func (p *CandleProcessor) rollLocked(symbol string, candle *model.KLine) {
	h := append(p.history[symbol], *candle)
	if len(h) > p.maxHistory {
		h = h[len(h)-p.maxHistory:]
	}
	p.history[symbol] = h
}

// History returns up to limit completed candles for the symbol, oldest
// first.
func (p *CandleProcessor) History(symbol string, limit int) []model.KLine {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.history[symbol]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]model.KLine, len(h))
	copy(out, h)
	return out
}
