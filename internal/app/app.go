package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paper-trader/api"
	"paper-trader/internal/bridge"
	"paper-trader/internal/config"
	"paper-trader/internal/engine"
	"paper-trader/internal/infrastructure"
	"paper-trader/internal/processor"
	"paper-trader/internal/push"
	"paper-trader/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App defines the application structure and its dependencies
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Engine      *engine.Engine
	Candles     *processor.CandleProcessor
	PushGateway *push.PushGateway
	HTTPServer  *http.Server

	// Optional collaborators, enabled by config.
	NC       *nats.Conn
	JS       nats.JetStreamContext
	Bridge   *bridge.NATSBridge
	DB       *pgxpool.Pool
	Archiver *storage.FillArchiver
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	infrastructure.Init()
	logger := infrastructure.Logger
	api.SetJWTSecret(cfg.JWTSecret)

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Engine
	symbols, err := ParseSymbols(a.Config.Symbols)
	if err != nil {
		return fmt.Errorf("failed to parse symbol universe: %w", err)
	}
	seed := a.Config.FeedSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a.Engine = engine.New(engine.Config{
		Symbols:      symbols,
		TickInterval: time.Duration(a.Config.TickIntervalMS) * time.Millisecond,
	}, engine.NewRandomWalkSource(seed), a.Logger)

	// 2. NATS (optional)
	if a.Config.NatsURL != "" {
		nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.NC = nc
		a.JS = js
		a.Bridge = bridge.NewNATSBridge(js, a.Logger)
	}

	// 3. Archive DB (optional)
	if a.Config.DB_DSN != "" {
		dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = dbPool
		if err := a.initDatabase(ctx); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.Archiver = storage.NewFillArchiver(dbPool, a.Logger, 1*time.Second, 100)
	}

	// 4. Services
	a.Candles = processor.NewCandleProcessor(a.Logger)
	a.PushGateway = push.NewPushGateway(a.Engine, a.Logger)

	return nil
}

// Run starts the engine and its consumers, then the HTTP server
func (a *App) Run(ctx context.Context) error {
	a.Candles.Attach(a.Engine)
	if a.Bridge != nil {
		a.Bridge.Attach(a.Engine)
	}
	if a.Archiver != nil {
		a.Archiver.Attach(ctx, a.Engine)
	}

	a.Engine.Start()

	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	a.Engine.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Archiver != nil {
		a.Archiver.Stop(ctx, a.Engine)
	}
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if a.NC != nil {
		a.NC.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}

	return nil
}

// initDatabase runs the database initialization script
func (a *App) initDatabase(ctx context.Context) error {
	sqlFile := "scripts/init.sql"
	content, err := os.ReadFile(sqlFile)
	if err != nil {
		return fmt.Errorf("failed to read init script: %w", err)
	}

	_, err = a.DB.Exec(ctx, string(content))
	if err != nil {
		return fmt.Errorf("failed to execute init script: %w", err)
	}

	a.Logger.Info("database initialized successfully")
	return nil
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	var fills *storage.FillLoader
	if a.DB != nil {
		fills = storage.NewFillLoader(a.DB)
	}
	apiHandler := api.NewHandler(a.Engine, a.Candles, api.NewUserStore(), fills, a.Logger)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/register", apiHandler.Register)
		v1.POST("/login", apiHandler.Login)
		v1.GET("/prices", apiHandler.GetPrices)
		v1.GET("/klines/:symbol", apiHandler.GetHistoryKLines)
		v1.GET("/fills/:symbol", apiHandler.GetFills)
		v1.GET("/agents", apiHandler.GetAgents)
		v1.GET("/agents/:id", apiHandler.GetAgent)
		v1.GET("/agents/:id/portfolio", apiHandler.GetPortfolio)
	}

	protected := r.Group("/api/v1")
	protected.Use(api.AuthMiddleware())
	{
		protected.POST("/agents", apiHandler.CreateAgent)
		protected.PUT("/agents/:id/status", apiHandler.SetAgentStatus)
		protected.POST("/orders", apiHandler.SubmitOrder)
		protected.DELETE("/orders/:id", apiHandler.CancelOrder)
		protected.POST("/backtest", apiHandler.RunBacktest)
	}

	r.GET("/ws", func(c *gin.Context) {
		a.PushGateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
