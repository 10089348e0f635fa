package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether no further status transition is permitted.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// RejectReason explains why an order ended up REJECTED. A rejection is a
// first-class business outcome, not an error.
type RejectReason string

const (
	RejectInsufficientFunds    RejectReason = "insufficient_funds"
	RejectInsufficientPosition RejectReason = "insufficient_position"
)

// Order is a simulated order. Once the status is terminal the order is
// immutable; it is owned exclusively by its agent's portfolio.
type Order struct {
	ID           string           `json:"id"`
	AgentID      string           `json:"agent_id"`
	Symbol       string           `json:"symbol"`
	Side         OrderSide        `json:"side"`
	Type         OrderType        `json:"type"`
	Quantity     decimal.Decimal  `json:"quantity"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	Status       OrderStatus      `json:"status"`
	RejectReason RejectReason     `json:"reject_reason,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	FilledAt     *time.Time       `json:"filled_at,omitempty"`
	FilledPrice  *decimal.Decimal `json:"filled_price,omitempty"`
}

// Transaction is one append-only audit log entry, recorded exactly once per
// filled order. Portfolio totals can be recomputed from these alone.
type Transaction struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Timestamp   time.Time       `json:"timestamp"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}
