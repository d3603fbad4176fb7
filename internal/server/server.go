package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kitab-ai/kitab/config"
	"github.com/kitab-ai/kitab/internal/rag"
	"github.com/kitab-ai/kitab/internal/store"
	"github.com/kitab-ai/kitab/internal/translation"
	"github.com/kitab-ai/kitab/provider"
)

// Run wires the engine and serves the HTTP API until the listener fails.
func Run(cfgPath, addr string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		baseLogger.Printf("migrations: %v", err)
	}

	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	gate := rag.NewGate(llm, rag.StoreIndex{Store: st}, cfg.Retrieval.TopK, cfg.Retrieval.ConfidenceThreshold)
	assembler := rag.NewAssembler(cfg.Retrieval.MinSelectionChars, cfg.Retrieval.MaxSelectionChars)
	answerer := rag.NewAnswerer(llm, cfg.Retrieval.MaxHistoryTurns)
	engineLogger := log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	engine := rag.New(gate, assembler, answerer, rag.StoreConversations{Store: st}, st, cfg.Retrieval.MaxHistoryTurns, engineLogger)

	agent := translation.NewAgent(llm, cfg.Translation.ChunkSize)
	xlateLogger := log.New(log.Writer(), "[XLATE] ", log.LstdFlags)
	cache := translation.NewCache(st, agent, cfg.Translation.TTL, cfg.General.DefaultTimeout, xlateLogger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
	}

	sweepStop := make(chan struct{})
	sweeper := &translation.Sweeper{
		Jobs:     st,
		Rdb:      rdb,
		Schedule: cfg.Translation.SweepSchedule,
		Stop:     sweepStop,
	}
	sweeper.Start()
	defer close(sweepStop)

	api := e.Group("/api")
	api.Use(withOptionalUser([]byte(cfg.Server.JWTSecret)))

	ch := &ChatHandler{Engine: engine}
	ch.Register(api.Group("/chat"))

	th := &TranslationsHandler{Cache: cache}
	th.Register(api.Group("/translations"))

	if addr == "" {
		addr = cfg.Server.Address
		if addr == "" {
			addr = ":8080"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}