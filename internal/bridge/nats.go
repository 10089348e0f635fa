package bridge

import (
	"encoding/json"

	"paper-trader/internal/engine"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects the bridge publishes engine events on.
var eventSubjects = map[engine.EventType]string{
	engine.EventPricesUpdated:      "paper.evt.prices",
	engine.EventOrderFilled:        "paper.evt.order_filled",
	engine.EventAgentCreated:       "paper.evt.agent_created",
	engine.EventAgentStatusChanged: "paper.evt.agent_status",
}

// NATSBridge relays engine events to JetStream for collaborators outside the
// process. The engine itself never depends on it; when no NATS URL is
// configured the bridge is simply not attached.
type NATSBridge struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	subs   []*engine.Subscription
}

func NewNATSBridge(js nats.JetStreamContext, logger *zap.Logger) *NATSBridge {
	return &NATSBridge{js: js, logger: logger}
}

// Attach subscribes the bridge to every relayed engine event.
func (b *NATSBridge) Attach(e *engine.Engine) {
	for event, subject := range eventSubjects {
		subj := subject
		sub := e.On(event, func(payload interface{}) {
			b.publish(subj, payload)
		})
		b.subs = append(b.subs, sub)
	}
	b.logger.Info("nats bridge attached")
}

// Detach removes the bridge's bus subscriptions.
func (b *NATSBridge) Detach(e *engine.Engine) {
	for _, sub := range b.subs {
		e.Off(sub)
	}
	b.subs = nil
}

func (b *NATSBridge) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("failed to marshal event for NATS", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := b.js.Publish(subject, data); err != nil {
		b.logger.Error("failed to publish to NATS", zap.String("subject", subject), zap.Error(err))
	}
}
