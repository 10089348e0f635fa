package push

import (
	"encoding/json"
	"net/http"
	"sync"

	"paper-trader/internal/engine"
	"paper-trader/internal/infrastructure"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Topics clients can subscribe to, each backed by one or more engine events.
var topicEvents = map[string][]engine.EventType{
	"prices": {engine.EventPricesUpdated},
	"orders": {engine.EventOrderFilled},
	"agents": {engine.EventAgentCreated, engine.EventAgentStatusChanged},
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// PushGateway fans engine events out to dashboard websocket clients with
// per-topic subscribe/unsubscribe.
type PushGateway struct {
	logger        *zap.Logger
	engine        *engine.Engine
	clients       map[*Client]bool
	subscriptions map[string]map[*Client]bool
	busSubs       map[string][]*engine.Subscription
	mu            sync.RWMutex
}

func NewPushGateway(eng *engine.Engine, logger *zap.Logger) *PushGateway {
	return &PushGateway{
		logger:        logger,
		engine:        eng,
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		busSubs:       make(map[string][]*engine.Subscription),
	}
}

func (g *PushGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}

	g.mu.Lock()
	g.clients[client] = true
	g.mu.Unlock()
	infrastructure.WSConnections.Inc()

	go g.writePump(client)
	g.readPump(client)
}

func (g *PushGateway) readPump(c *Client) {
	defer func() {
		g.mu.Lock()
		delete(g.clients, c)
		for topic, clients := range g.subscriptions {
			delete(clients, c)
			if len(clients) == 0 {
				g.dropTopicLocked(topic)
			}
		}
		g.mu.Unlock()
		infrastructure.WSConnections.Dec()
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Action string `json:"action"` // "subscribe", "unsubscribe"
			Topic  string `json:"topic"`
		}
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		if _, known := topicEvents[req.Topic]; !known {
			continue
		}

		g.mu.Lock()
		switch req.Action {
		case "subscribe":
			if g.subscriptions[req.Topic] == nil {
				g.subscriptions[req.Topic] = make(map[*Client]bool)
				g.subscribeToBus(req.Topic)
			}
			g.subscriptions[req.Topic][c] = true
			g.logger.Info("client subscribed to topic", zap.String("topic", req.Topic))
		case "unsubscribe":
			if clients, ok := g.subscriptions[req.Topic]; ok {
				delete(clients, c)
				if len(clients) == 0 {
					g.dropTopicLocked(req.Topic)
				}
			}
		}
		g.mu.Unlock()
	}
}

func (g *PushGateway) dropTopicLocked(topic string) {
	for _, sub := range g.busSubs[topic] {
		g.engine.Off(sub)
	}
	delete(g.busSubs, topic)
	delete(g.subscriptions, topic)
	g.logger.Info("dropped engine subscriptions, no clients left", zap.String("topic", topic))
}

func (g *PushGateway) writePump(c *Client) {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (g *PushGateway) subscribeToBus(topic string) {
	for _, event := range topicEvents[topic] {
		sub := g.engine.On(event, func(payload interface{}) {
			g.broadcast(topic, payload)
		})
		g.busSubs[topic] = append(g.busSubs[topic], sub)
	}
	g.logger.Info("subscribed to engine events", zap.String("topic", topic))
}

func (g *PushGateway) broadcast(topic string, payload interface{}) {
	data, err := json.Marshal(map[string]interface{}{
		"topic": topic,
		"data":  payload,
	})
	if err != nil {
		g.logger.Error("failed to marshal event", zap.String("topic", topic), zap.Error(err))
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for c := range g.subscriptions[topic] {
		select {
		case c.send <- data:
		default:
			// Do not block the engine tick, drop if the client is slow
		}
	}
}
