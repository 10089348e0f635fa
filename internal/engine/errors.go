package engine

import "errors"

// Validation errors are reported synchronously to the caller. Business
// rejections (insufficient funds or position) are not errors; they come back
// as a REJECTED order.
var (
	ErrUnknownAgent      = errors.New("unknown agent")
	ErrUnknownSymbol     = errors.New("unknown symbol")
	ErrUnknownOrder      = errors.New("unknown order")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidOrderSide  = errors.New("order side must be BUY or SELL")
	ErrInvalidOrderType  = errors.New("order type must be MARKET or LIMIT")
	ErrMissingLimitPrice = errors.New("limit order requires a limit price")
	ErrInvalidCash       = errors.New("initial cash must not be negative")
	ErrOrderTerminal     = errors.New("order is in a terminal status")
	ErrInvalidTransition = errors.New("invalid agent status transition")
	ErrNilStrategy       = errors.New("agent requires a strategy")
)
