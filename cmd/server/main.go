package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"coinscout/internal/bot"
	"coinscout/internal/cache"
	"coinscout/internal/config"
	"coinscout/internal/consensus"
	"coinscout/internal/db"
	"coinscout/internal/handler"
	"coinscout/internal/job"
	"coinscout/internal/provider"
	"coinscout/internal/rebalance"
	"coinscout/internal/repository"
	"coinscout/internal/scan"
	"coinscout/internal/scanner"
	"coinscout/internal/service"
	"coinscout/internal/strategy"
	"coinscout/internal/universe"
	"coinscout/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "coinscout/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newOpportunityRepoFunc = repository.NewOpportunityRepository
	newOrchestratorFunc    = scan.NewOrchestrator
	startReaperFunc        = func(r *job.ScanReaper, ctx context.Context) { go r.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Coinscout API
// @version         1.0
// @description     Opportunity discovery scans and portfolio rebalancing for crypto traders.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	initPostgresFunc(ctx, cfg.DatabaseURL)
	initRedisFunc(ctx, cfg.RedisURL)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Opportunity history lives in Postgres, hot scan state in Redis.
	var history service.OpportunityWriter
	if db.Pool != nil {
		opportunityRepo := newOpportunityRepoFunc(db.Pool, tracer)
		if err := opportunityRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		history = opportunityRepo
	}

	retention := time.Duration(cfg.ScanRetentionSecs) * time.Second
	var store scan.Store
	if cache.Client != nil {
		store = scan.NewRedisStore(cache.Client, retention)
	} else {
		store = scan.NewMemoryStore(retention)
	}

	// Providers
	marketProvider := provider.NewMarketDataProvider(tracer, cfg.MarketDataURL, nil)
	userProvider := provider.NewUserServiceProvider(tracer, cfg.UserServiceURL, nil)

	// Consensus: heuristic always, OpenAI when configured.
	opinionProviders := []consensus.OpinionProvider{consensus.NewHeuristicProvider()}
	if cfg.OpenAIAPIKey != "" {
		opinionProviders = append(opinionProviders, consensus.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel))
	}
	scorer := consensus.NewScorer(tracer, cfg.ConsensusStdLimit, opinionProviders...)

	orchestrator := newOrchestratorFunc(tracer, store, marketProvider, scorer, scan.Config{
		ScanTimeout:    time.Duration(cfg.ScanTimeoutSecs) * time.Second,
		ScannerTimeout: time.Duration(cfg.ScannerTimeoutSecs) * time.Second,
	})

	registry, err := strategy.NewRegistry(scanner.DefaultSet()...)
	if err != nil {
		log.Fatalf("failed to build strategy registry: %v", err)
	}

	hub := handler.NewProgressHub()
	discoveryService := service.NewDiscoveryService(tracer, orchestrator, userProvider, universe.NewResolver(), registry).
		WithProgressForwarding(hub)
	if cache.Client != nil {
		discoveryService.WithDedupe(cache.Client)
	}
	if history != nil {
		discoveryService.WithHistory(history)
	}

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	if alerts := startTelegramBotFunc(discoveryService, discoveryService); alerts != nil {
		discoveryService.WithAlerts(alerts)
	}
	orchestrator.SetProgressNotifier(discoveryService)

	rebalanceService := service.NewRebalanceService(tracer, userProvider,
		rebalance.NewEngine(cfg.MinTradeUSD, cfg.DeviationThreshold))

	// Reaper cleans up scans abandoned by crashed replicas.
	reaper := job.NewScanReaper(tracer, store,
		time.Duration(cfg.ReapIntervalSecs)*time.Second,
		time.Duration(cfg.ReapStaleSecs)*time.Second)
	startReaperFunc(reaper, ctx)

	// Create handlers and routes
	h := handler.New(tracer, discoveryService, rebalanceService, hub)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("coinscout"))
	r.Use(cors.Default())

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    httpAddrFromEnv(cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func httpAddrFromEnv(fallbackPort int) string {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return fmt.Sprintf(":%d", fallbackPort)
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}
