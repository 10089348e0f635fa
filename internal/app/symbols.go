package app

import (
	"fmt"
	"strings"

	"paper-trader/internal/engine"
	"paper-trader/internal/model"

	"github.com/shopspring/decimal"
)

// ParseSymbols turns the SYMBOLS config string ("BTC:45000,ETH:2800") into
// the engine's symbol universe.
func ParseSymbols(raw string) ([]engine.SymbolConfig, error) {
	var out []engine.SymbolConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, priceStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("symbol entry %q: want SYMBOL:initial_price", entry)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(priceStr))
		if err != nil {
			return nil, fmt.Errorf("symbol entry %q: %w", entry, err)
		}
		out = append(out, engine.SymbolConfig{
			Name:         model.NormalizeSymbol(name),
			InitialPrice: price,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	return out, nil
}
