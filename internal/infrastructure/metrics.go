package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paper_ticks_total",
		Help: "Total number of simulation ticks",
	})

	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_orders_submitted_total",
		Help: "Total number of orders submitted",
	}, []string{"side", "type"})

	OrdersFilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paper_orders_filled_total",
		Help: "Total number of orders filled",
	})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_orders_rejected_total",
		Help: "Total number of orders rejected",
	}, []string{"reason"})

	ActiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paper_active_agents",
		Help: "Number of agents in ACTIVE status",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	ArchivedFills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_archived_fills_total",
		Help: "Total number of fills written to the archive DB",
	}, []string{"table"})
)
