package model

import "github.com/shopspring/decimal"

// Position is the agent's open holding in one symbol. Positions with zero
// quantity are removed rather than kept as zero rows.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
}

// Portfolio is a point-in-time snapshot of one agent's holdings. TotalValue
// is computed at snapshot time from cash plus mark-to-market positions and is
// never stored independently.
type Portfolio struct {
	Cash         decimal.Decimal `json:"cash"`
	Positions    []Position      `json:"positions"`
	Orders       []Order         `json:"orders"`
	Transactions []Transaction   `json:"transactions"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// AgentPerformance is derived from the transaction log on every read; there
// is no independent source of truth for it.
type AgentPerformance struct {
	TotalTrades int             `json:"total_trades"`
	WinRate     float64         `json:"win_rate"` // share of closing trades with positive realized PnL
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}
