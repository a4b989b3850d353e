// Package main provides the unified service that runs all components:
// - Ingestion (continuous): execution node polling, newHeads stream, relay bid traces
// - Scoring (scheduled): health score calculation, anomaly detection
// - Serving: HTTP API, WebSocket broadcast, Prometheus metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ethpulse/internal/broadcast"
	"ethpulse/internal/ethrpc"
	"ethpulse/internal/health"
	"ethpulse/internal/ingestion"
	"ethpulse/internal/observability"
	"ethpulse/internal/orchestrator"
	"ethpulse/internal/storage"
	chstore "ethpulse/internal/storage/clickhouse"
	"ethpulse/internal/storage/memory"
	"ethpulse/internal/storage/migrations"
	pgstore "ethpulse/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	gasStore     storage.GasMetricStore
	blockStore   storage.BlockMetricStore
	mempoolStore storage.MempoolMetricStore
	mevStore     storage.MEVMetricStore
	scoreStore   storage.HealthScoreStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("ETH_RPC_ENDPOINT"), "Ethereum JSON-RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("ETH_WS_ENDPOINT"), "Ethereum WebSocket endpoint for newHeads (optional)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	redisURL := flag.String("redis-url", os.Getenv("REDIS_URL"), "Redis URL for pub/sub fan-out (optional)")
	relays := flag.String("relays", "", "Comma-separated name=url MEV-Boost relay overrides")
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	collectInterval := flag.Duration("collect-interval", 15*time.Second, "Execution node collection interval")
	relayInterval := flag.Duration("relay-interval", 60*time.Second, "Relay bid trace collection interval")
	scoreInterval := flag.Duration("score-interval", orchestrator.DefaultInterval, "Scoring cycle interval")
	freshness := flag.Duration("score-freshness", orchestrator.DefaultFreshness, "Max age of a stored score before on-demand recompute")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

	hub := broadcast.NewHub(metrics, logger)
	go hub.Run(ctx)

	var redisPub *broadcast.RedisPublisher
	if *redisURL != "" {
		redisPub, err = broadcast.NewRedisPublisher(ctx, *redisURL, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisPub.Close()
		logger.Println("Redis fan-out enabled")
	}

	calculator := health.NewCalculator(
		stores.gasStore, stores.blockStore, stores.mevStore,
		log.New(os.Stdout, "[health] ", log.LstdFlags),
	)

	scheduler := orchestrator.NewScheduler(orchestrator.SchedulerOptions{
		Calculator: calculator,
		ScoreStore: stores.scoreStore,
		Hub:        hub,
		Redis:      redisPub,
		Interval:   *scoreInterval,
		Freshness:  *freshness,
		Metrics:    metrics,
		Logger:     logger,
	})

	// Ingestion components
	rpc := ethrpc.NewHTTPClient(*rpcEndpoint)
	execCollector := ingestion.NewExecutionCollector(rpc, stores.gasStore,
		log.New(os.Stdout, "[ingestion] ", log.LstdFlags))
	relayCollector := ingestion.NewRelayCollector(resolveRelays(*relays),
		log.New(os.Stdout, "[ingestion] ", log.LstdFlags), metrics)

	var heads <-chan ethrpc.Head
	if *wsEndpoint != "" {
		subscriber, err := ethrpc.NewHeadSubscriber(ctx, *wsEndpoint, nil, logger)
		if err != nil {
			logger.Fatalf("Failed to subscribe to newHeads: %v", err)
		}
		defer subscriber.Close()
		heads = subscriber.Heads()
		logger.Println("Subscribed to newHeads")
	}

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		ExecCollector:   execCollector,
		RelayCollector:  relayCollector,
		Heads:           heads,
		GasStore:        stores.gasStore,
		BlockStore:      stores.blockStore,
		MempoolStore:    stores.mempoolStore,
		MEVStore:        stores.mevStore,
		CollectInterval: *collectInterval,
		RelayInterval:   *relayInterval,
		Metrics:         metrics,
		Logger:          log.New(os.Stdout, "[ingestion] ", log.LstdFlags),
	})

	// HTTP API
	router := initRouter(scheduler, hub)
	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: router,
	}

	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	errCh := make(chan error, 3)

	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("ingestion: %w", err)
		}
	}()
	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()
	go func() {
		logger.Printf("HTTP server listening on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
		cancel()
	}
	done <- err

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// initRouter builds the gin API around the scheduler and broadcast hub.
func initRouter(scheduler *orchestrator.Scheduler, hub *broadcast.Hub) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.SetTrustedProxies(nil)

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	r.GET("/metrics", gin.WrapH(observability.Handler()))

	r.GET("/ws", func(c *gin.Context) {
		broadcast.ServeWS(hub, c.Writer, c.Request)
	})

	api := r.Group("/api/v1")

	api.GET("/health/score", func(c *gin.Context) {
		record, err := scheduler.Current(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, record)
	})

	api.GET("/health/history", func(c *gin.Context) {
		hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
		if err != nil || hours < 1 || hours > 168 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be between 1 and 168"})
			return
		}

		records, err := scheduler.History(c.Request.Context(), time.Duration(hours)*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"hours":  hours,
			"count":  len(records),
			"scores": records,
		})
	})

	api.GET("/anomalies", func(c *gin.Context) {
		record, err := scheduler.Current(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"timestamp": record.Timestamp,
			"count":     len(record.Anomalies),
			"anomalies": record.Anomalies,
		})
	})

	return r
}

// createStores creates all required stores, applying migrations in DB mode.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			gasStore:     memory.NewGasMetricStore(),
			blockStore:   memory.NewBlockMetricStore(),
			mempoolStore: memory.NewMempoolMetricStore(),
			mevStore:     memory.NewMEVMetricStore(),
			scoreStore:   memory.NewHealthScoreStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL (raw samples)
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse (score analytics)
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &allStores{
		gasStore:     pgstore.NewGasMetricStore(pool),
		blockStore:   pgstore.NewBlockMetricStore(pool),
		mempoolStore: pgstore.NewMempoolMetricStore(pool),
		mevStore:     pgstore.NewMEVMetricStore(pool),
		scoreStore:   chstore.NewHealthScoreStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// resolveRelays parses name=url overrides, falling back to the defaults.
func resolveRelays(spec string) map[string]string {
	if spec == "" {
		return nil
	}

	relays := make(map[string]string)
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		relays[parts[0]] = parts[1]
	}
	if len(relays) == 0 {
		return nil
	}
	return relays
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
