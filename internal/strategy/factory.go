package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NewStrategy builds a strategy of the given kind from a loosely-typed config
// map (as received over the API), validating it into the kind's typed params.
func NewStrategy(strategyType string, config map[string]interface{}) (Strategy, error) {
	switch strategyType {
	case "momentum":
		symbol, err := stringParam(config, "symbol")
		if err != nil {
			return nil, err
		}
		threshold, err := decimalParam(config, "threshold")
		if err != nil {
			return nil, err
		}
		size, err := decimalParam(config, "order_size")
		if err != nil {
			return nil, err
		}
		return NewMomentumStrategy(MomentumParams{
			Symbol:    symbol,
			Threshold: threshold,
			OrderSize: size,
		}), nil

	case "mean_reversion":
		symbol, err := stringParam(config, "symbol")
		if err != nil {
			return nil, err
		}
		window, err := decimalParam(config, "window")
		if err != nil {
			return nil, err
		}
		if window.IntPart() < 2 {
			return nil, fmt.Errorf("mean_reversion: window must be at least 2")
		}
		deviation, err := decimalParam(config, "deviation")
		if err != nil {
			return nil, err
		}
		size, err := decimalParam(config, "order_size")
		if err != nil {
			return nil, err
		}
		return NewMeanReversionStrategy(MeanReversionParams{
			Symbol:    symbol,
			Window:    int(window.IntPart()),
			Deviation: deviation,
			OrderSize: size,
		}), nil

	case "random":
		symbol, err := stringParam(config, "symbol")
		if err != nil {
			return nil, err
		}
		prob, err := decimalParam(config, "trade_prob")
		if err != nil {
			return nil, err
		}
		size, err := decimalParam(config, "order_size")
		if err != nil {
			return nil, err
		}
		seed := int64(0)
		if s, err := decimalParam(config, "seed"); err == nil {
			seed = s.IntPart()
		}
		p, _ := prob.Float64()
		return NewRandomStrategy(RandomParams{
			Symbol:    symbol,
			TradeProb: p,
			OrderSize: size,
			Seed:      seed,
		}), nil

	default:
		return nil, fmt.Errorf("unknown strategy type: %s", strategyType)
	}
}

func stringParam(config map[string]interface{}, key string) (string, error) {
	v, ok := config[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing or invalid %q", key)
	}
	return v, nil
}

func decimalParam(config map[string]interface{}, key string) (decimal.Decimal, error) {
	switch v := config[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid %q: %w", key, err)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("missing or invalid %q", key)
	}
}
