package storage

import (
	"context"
	"sync"
	"time"

	"paper-trader/internal/engine"
	"paper-trader/internal/infrastructure"
	"paper-trader/internal/model"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// FillArchiver batches filled orders into Postgres. It is the optional
// persistence collaborator outside the engine core: the simulation never
// reads from it or waits on it, and losing it loses nothing but history.
type FillArchiver struct {
	pool      *pgxpool.Pool
	logger    *zap.Logger
	interval  time.Duration
	batchSize int

	mu     sync.Mutex
	buffer []model.Order
	sub    *engine.Subscription
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewFillArchiver(pool *pgxpool.Pool, logger *zap.Logger, interval time.Duration, batchSize int) *FillArchiver {
	return &FillArchiver{
		pool:      pool,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		buffer:    make([]model.Order, 0, batchSize),
	}
}

// Attach subscribes to orderFilled and starts the background flush loop.
func (a *FillArchiver) Attach(ctx context.Context, e *engine.Engine) {
	a.sub = e.On(engine.EventOrderFilled, func(payload interface{}) {
		order, ok := payload.(model.Order)
		if !ok {
			a.logger.Error("unexpected orderFilled payload type")
			return
		}
		a.add(order)
	})
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.flushLoop(ctx)
	a.logger.Info("fill archiver attached",
		zap.Duration("interval", a.interval),
		zap.Int("batch_size", a.batchSize),
	)
}

// Stop detaches from the engine and flushes whatever is buffered.
func (a *FillArchiver) Stop(ctx context.Context, e *engine.Engine) {
	if a.sub != nil {
		e.Off(a.sub)
		a.sub = nil
	}
	if a.stopCh != nil {
		close(a.stopCh)
		<-a.doneCh
	}
	a.flush(ctx)
}

func (a *FillArchiver) add(order model.Order) {
	a.mu.Lock()
	a.buffer = append(a.buffer, order)
	full := len(a.buffer) >= a.batchSize
	a.mu.Unlock()

	if full {
		// Flush inline rather than waiting for the ticker; the write is
		// off the engine tick already (bounded only by the DB).
		a.flush(context.Background())
	}
}

func (a *FillArchiver) flushLoop(ctx context.Context) {
	defer close(a.doneCh)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.flush(ctx)
		}
	}
}

func (a *FillArchiver) flush(ctx context.Context) {
	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.buffer
	a.buffer = make([]model.Order, 0, a.batchSize)
	a.mu.Unlock()

	rows := make([][]interface{}, 0, len(batch))
	for _, o := range batch {
		if o.FilledPrice == nil || o.FilledAt == nil {
			continue
		}
		rows = append(rows, []interface{}{
			o.ID, o.AgentID, o.Symbol, string(o.Side), string(o.Type),
			o.Quantity, *o.FilledPrice, *o.FilledAt,
		})
	}

	n, err := a.pool.CopyFrom(ctx,
		pgx.Identifier{"paper_fills"},
		[]string{"order_id", "agent_id", "symbol", "side", "type", "quantity", "price", "filled_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		a.logger.Error("failed to archive fills", zap.Int("count", len(rows)), zap.Error(err))
		return
	}
	infrastructure.ArchivedFills.WithLabelValues("paper_fills").Add(float64(n))
}
