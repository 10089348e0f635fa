package engine

import (
	"sync"

	"go.uber.org/zap"
)

type EventType string

const (
	EventPricesUpdated      EventType = "pricesUpdated"      // payload: []model.MarketPrice
	EventOrderFilled        EventType = "orderFilled"        // payload: model.Order
	EventAgentCreated       EventType = "agentCreated"       // payload: model.TradingAgent
	EventAgentStatusChanged EventType = "agentStatusChanged" // payload: model.TradingAgent
)

type Handler func(payload interface{})

// Subscription identifies one registered handler. Go funcs are not
// comparable, so unsubscribing takes the token returned by On.
type Subscription struct {
	event EventType
	id    uint64
	fn    Handler
}

// Bus delivers engine events to subscribers synchronously, in subscription
// order, on the emitting goroutine. A panicking handler is recovered and
// logged so it cannot block delivery to later handlers.
type Bus struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	nextID   uint64
	handlers map[EventType][]*Subscription
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[EventType][]*Subscription),
	}
}

// On registers a handler for the event and returns its subscription token.
func (b *Bus) On(event EventType, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{event: event, id: b.nextID, fn: fn}
	b.handlers[event] = append(b.handlers[event], sub)
	return sub
}

// Off removes a previously registered subscription. Unknown tokens are a
// no-op.
func (b *Bus) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[sub.event]
	for i, s := range subs {
		if s.id == sub.id {
			b.handlers[sub.event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of handlers registered for the event.
func (b *Bus) ListenerCount(event EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}

// Emit invokes every handler registered for the event, in subscription
// order.
func (b *Bus) Emit(event EventType, payload interface{}) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.handlers[event]))
	copy(subs, b.handlers[event])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.invoke(event, sub, payload)
	}
}

func (b *Bus) invoke(event EventType, sub *Subscription, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event", string(event)),
				zap.Any("panic", r),
			)
		}
	}()
	sub.fn(payload)
}
