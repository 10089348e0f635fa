package model

import "time"

type AgentStatus string

const (
	AgentActive  AgentStatus = "ACTIVE"
	AgentIdle    AgentStatus = "IDLE"
	AgentError   AgentStatus = "ERROR"
	AgentStopped AgentStatus = "STOPPED"
)

// TradingAgent is the public view of one simulated agent. Portfolio and
// Performance are snapshots computed when the agent is read.
type TradingAgent struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	StrategyType string           `json:"strategy_type"`
	StrategyName string           `json:"strategy_name"`
	Status       AgentStatus      `json:"status"`
	Portfolio    Portfolio        `json:"portfolio"`
	Performance  AgentPerformance `json:"performance"`
	CreatedAt    time.Time        `json:"created_at"`
}
