package storage

import (
	"context"
	"time"

	"paper-trader/internal/model"

	"github.com/jackc/pgx/v4/pgxpool"
)

// ArchivedFill is one row read back from the fill archive.
type ArchivedFill struct {
	OrderID  string          `json:"order_id"`
	AgentID  string          `json:"agent_id"`
	Symbol   string          `json:"symbol"`
	Side     model.OrderSide `json:"side"`
	Type     model.OrderType `json:"type"`
	Quantity string          `json:"quantity"`
	Price    string          `json:"price"`
	FilledAt time.Time       `json:"filled_at"`
}

type FillLoader struct {
	pool *pgxpool.Pool
}

func NewFillLoader(pool *pgxpool.Pool) *FillLoader {
	return &FillLoader{pool: pool}
}

// LoadFills returns archived fills for a symbol within the time range,
// oldest first.
func (l *FillLoader) LoadFills(ctx context.Context, symbol string, start, end time.Time, limit int) ([]ArchivedFill, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT order_id, agent_id, symbol, side, type, quantity, price, filled_at
		FROM paper_fills
		WHERE symbol = $1 AND filled_at >= $2 AND filled_at <= $3
		ORDER BY filled_at ASC
		LIMIT $4`,
		symbol, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []ArchivedFill
	for rows.Next() {
		var f ArchivedFill
		if err := rows.Scan(&f.OrderID, &f.AgentID, &f.Symbol, &f.Side, &f.Type, &f.Quantity, &f.Price, &f.FilledAt); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
