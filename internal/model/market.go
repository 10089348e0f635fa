package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketPrice is the current simulated quote for one tracked symbol.
// One row per symbol; rows are overwritten in place, never deleted.
type MarketPrice struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"` // percent vs. rolling reference
	UpdatedAt time.Time       `json:"updated_at"`
}

// KLine is one aggregated candle built from simulated price ticks.
type KLine struct {
	Symbol    string          `json:"symbol"`
	Period    string          `json:"period"` // "1m"
	Open      decimal.Decimal `json:"o"`
	High      decimal.Decimal `json:"h"`
	Low       decimal.Decimal `json:"l"`
	Close     decimal.Decimal `json:"c"`
	Volume    decimal.Decimal `json:"v"` // filled order quantity within the window
	Timestamp time.Time       `json:"t"`
}
