package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"paper-trader/internal/engine"
	"paper-trader/internal/model"
	"paper-trader/internal/processor"
	"paper-trader/internal/storage"
	"paper-trader/internal/strategy"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	engine  *engine.Engine
	candles *processor.CandleProcessor
	users   *UserStore
	fills   *storage.FillLoader // nil when no archive DB is configured
	logger  *zap.Logger
}

func NewHandler(eng *engine.Engine, candles *processor.CandleProcessor, users *UserStore, fills *storage.FillLoader, logger *zap.Logger) *Handler {
	return &Handler{
		engine:  eng,
		candles: candles,
		users:   users,
		fills:   fills,
		logger:  logger,
	}
}

// Auth Handlers

func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.Register(req.Email, req.Password); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
			return
		}
		h.logger.Error("failed to register user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "user created"})
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.Authenticate(req.Email, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := GenerateToken(req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Market Data Handlers

func (h *Handler) GetPrices(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetAllMarketPrices())
}

func (h *Handler) GetHistoryKLines(c *gin.Context) {
	symbol := model.NormalizeSymbol(c.Param("symbol"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	c.JSON(http.StatusOK, h.candles.History(symbol, limit))
}

func (h *Handler) GetFills(c *gin.Context) {
	if h.fills == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "fill archive not configured"})
		return
	}

	symbol := model.NormalizeSymbol(c.Param("symbol"))
	end := time.Now()
	start := end.Add(-24 * time.Hour)

	fills, err := h.fills.LoadFills(c.Request.Context(), symbol, start, end, 500)
	if err != nil {
		h.logger.Error("failed to load archived fills", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, fills)
}

// Agent Handlers

func (h *Handler) GetAgents(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetAllAgents())
}

func (h *Handler) GetAgent(c *gin.Context) {
	agent, ok := h.engine.GetAgent(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	agent, ok := h.engine.GetAgent(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, agent.Portfolio)
}

func (h *Handler) CreateAgent(c *gin.Context) {
	var req struct {
		Name         string                 `json:"name" binding:"required"`
		StrategyType string                 `json:"strategy_type" binding:"required"`
		Config       map[string]interface{} `json:"config"`
		InitialCash  decimal.Decimal        `json:"initial_cash"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strat, err := strategy.NewStrategy(req.StrategyType, req.Config)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := h.engine.CreateAgent(req.Name, strat, req.InitialCash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (h *Handler) SetAgentStatus(c *gin.Context) {
	var req struct {
		Status model.AgentStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := h.engine.SetAgentStatus(c.Param("id"), req.Status)
	switch {
	case errors.Is(err, engine.ErrUnknownAgent):
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
	case errors.Is(err, engine.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, agent)
	}
}

// Order Handlers

func (h *Handler) SubmitOrder(c *gin.Context) {
	var req struct {
		AgentID    string           `json:"agent_id" binding:"required"`
		Symbol     string           `json:"symbol" binding:"required"`
		Side       model.OrderSide  `json:"side" binding:"required"`
		Type       model.OrderType  `json:"type" binding:"required"`
		Quantity   decimal.Decimal  `json:"quantity"`
		LimitPrice *decimal.Decimal `json:"limit_price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.engine.SubmitOrder(engine.OrderRequest{
		AgentID:    req.AgentID,
		Symbol:     model.NormalizeSymbol(req.Symbol),
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	})
	switch {
	case errors.Is(err, engine.ErrUnknownAgent), errors.Is(err, engine.ErrUnknownSymbol):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		// A REJECTED order is a normal outcome, returned as-is.
		c.JSON(http.StatusCreated, order)
	}
}

func (h *Handler) CancelOrder(c *gin.Context) {
	order, err := h.engine.CancelOrder(c.Param("id"))
	switch {
	case errors.Is(err, engine.ErrUnknownOrder):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, engine.ErrOrderTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "order": order})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, order)
	}
}

// Backtest Handler

func (h *Handler) RunBacktest(c *gin.Context) {
	var req struct {
		Symbol         string                 `json:"symbol" binding:"required"`
		StrategyType   string                 `json:"strategy_type" binding:"required"`
		Config         map[string]interface{} `json:"config"`
		InitialBalance decimal.Decimal        `json:"initial_balance"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.InitialBalance.LessThanOrEqual(decimal.Zero) {
		req.InitialBalance = decimal.NewFromInt(10000)
	}

	symbol := model.NormalizeSymbol(req.Symbol)
	klines := h.candles.History(symbol, 0)
	if len(klines) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no candle history for symbol yet"})
		return
	}

	strat, err := strategy.NewStrategy(req.StrategyType, req.Config)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tester := engine.NewBacktester(strat, req.InitialBalance)
	c.JSON(http.StatusOK, tester.Run(klines))
}
