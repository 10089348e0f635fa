package engine

import (
	"math/rand"
	"sort"
	"time"

	"paper-trader/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SymbolConfig seeds one tracked symbol in the price table.
type SymbolConfig struct {
	Name         string
	InitialPrice decimal.Decimal
}

// PriceSource produces the next price for a symbol from its previous price
// and its rolling reference. Implementations must be safe to call from the
// engine tick only; they are not called concurrently.
type PriceSource interface {
	Next(symbol string, prev, reference decimal.Decimal) decimal.Decimal
}

// RandomWalkSource is a bounded random walk with a soft mean-reversion bias
// toward the rolling reference price. A fixed seed makes it deterministic.
type RandomWalkSource struct {
	rng       *rand.Rand
	maxStep   float64 // max move per tick, as a fraction of the price
	reversion float64 // pull toward the reference, 0..1
}

func NewRandomWalkSource(seed int64) *RandomWalkSource {
	return &RandomWalkSource{
		rng:       rand.New(rand.NewSource(seed)),
		maxStep:   0.01,
		reversion: 0.05,
	}
}

func (s *RandomWalkSource) Next(_ string, prev, reference decimal.Decimal) decimal.Decimal {
	prevF, _ := prev.Float64()
	refF, _ := reference.Float64()
	if prevF <= 0 {
		return prev
	}

	step := (s.rng.Float64()*2 - 1) * s.maxStep
	if refF > 0 {
		step += s.reversion * (refF - prevF) / refF
	}

	next := prevF * (1 + step)
	if next <= 0 {
		next = prevF * s.maxStep
	}
	return decimal.NewFromFloat(next).Round(8)
}

// FixedSource replays a scripted sequence of prices per symbol and then holds
// the last one. Used by tests that need exact prices.
type FixedSource struct {
	sequences map[string][]decimal.Decimal
	offsets   map[string]int
}

func NewFixedSource(sequences map[string][]decimal.Decimal) *FixedSource {
	return &FixedSource{
		sequences: sequences,
		offsets:   make(map[string]int),
	}
}

func (s *FixedSource) Next(symbol string, prev, _ decimal.Decimal) decimal.Decimal {
	seq, ok := s.sequences[symbol]
	if !ok || len(seq) == 0 {
		return prev
	}
	i := s.offsets[symbol]
	if i >= len(seq) {
		i = len(seq) - 1
	} else {
		s.offsets[symbol]++
	}
	return seq[i]
}

// priceFeed owns the market price table. It is mutated only from the engine
// tick, under the engine lock.
type priceFeed struct {
	logger     *zap.Logger
	source     PriceSource
	symbols    []string // stable iteration order
	prices     map[string]*model.MarketPrice
	references map[string]decimal.Decimal
	refDecay   decimal.Decimal
}

func newPriceFeed(symbols []SymbolConfig, source PriceSource, logger *zap.Logger) *priceFeed {
	f := &priceFeed{
		logger:     logger,
		source:     source,
		prices:     make(map[string]*model.MarketPrice),
		references: make(map[string]decimal.Decimal),
		refDecay:   decimal.NewFromFloat(0.001),
	}
	now := time.Now()
	for _, sc := range symbols {
		if sc.Name == "" || sc.InitialPrice.LessThanOrEqual(decimal.Zero) {
			logger.Warn("skipping malformed symbol entry",
				zap.String("symbol", sc.Name),
				zap.String("initial_price", sc.InitialPrice.String()),
			)
			continue
		}
		if _, dup := f.prices[sc.Name]; dup {
			logger.Warn("skipping duplicate symbol entry", zap.String("symbol", sc.Name))
			continue
		}
		f.symbols = append(f.symbols, sc.Name)
		f.prices[sc.Name] = &model.MarketPrice{
			Symbol:    sc.Name,
			Price:     sc.InitialPrice,
			Change24h: decimal.Zero,
			UpdatedAt: now,
		}
		f.references[sc.Name] = sc.InitialPrice
	}
	sort.Strings(f.symbols)
	return f
}

// tick advances every tracked symbol one step and returns the full snapshot.
// A failure for one symbol is logged and skipped; the rest still update.
func (f *priceFeed) tick(now time.Time) []model.MarketPrice {
	for _, symbol := range f.symbols {
		row, ok := f.prices[symbol]
		if !ok {
			f.logger.Error("missing price row for tracked symbol", zap.String("symbol", symbol))
			continue
		}
		f.advance(row, now)
	}
	return f.snapshot()
}

func (f *priceFeed) advance(row *model.MarketPrice, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("price source panicked, symbol skipped this tick",
				zap.String("symbol", row.Symbol),
				zap.Any("panic", r),
			)
		}
	}()

	ref := f.references[row.Symbol]
	next := f.source.Next(row.Symbol, row.Price, ref)
	if next.LessThanOrEqual(decimal.Zero) {
		f.logger.Warn("price source produced non-positive price, symbol skipped this tick",
			zap.String("symbol", row.Symbol),
			zap.String("price", next.String()),
		)
		return
	}

	// The reference drifts slowly toward the live price, approximating a
	// rolling 24h anchor for the change percentage.
	ref = ref.Add(next.Sub(ref).Mul(f.refDecay))
	f.references[row.Symbol] = ref

	row.Price = next
	row.UpdatedAt = now
	if ref.IsPositive() {
		row.Change24h = next.Sub(ref).Div(ref).Mul(decimal.NewFromInt(100)).Round(4)
	}
}

func (f *priceFeed) snapshot() []model.MarketPrice {
	out := make([]model.MarketPrice, 0, len(f.symbols))
	for _, symbol := range f.symbols {
		if row, ok := f.prices[symbol]; ok {
			out = append(out, *row)
		}
	}
	return out
}

func (f *priceFeed) priceMap() map[string]model.MarketPrice {
	out := make(map[string]model.MarketPrice, len(f.prices))
	for symbol, row := range f.prices {
		out[symbol] = *row
	}
	return out
}

func (f *priceFeed) price(symbol string) (decimal.Decimal, bool) {
	row, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, false
	}
	return row.Price, true
}
