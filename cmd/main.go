/**
 * @description
 * This is the main entry point for the settlement-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: Scheduled sweep runs.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/providerclient, pkg/priceoracle, pkg/rabbitmq: External collaborators.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kudipay/settlement-service/internal/api"
	"github.com/kudipay/settlement-service/internal/app"
	"github.com/kudipay/settlement-service/internal/config"
	"github.com/kudipay/settlement-service/internal/store"
	"github.com/kudipay/settlement-service/pkg/priceoracle"
	"github.com/kudipay/settlement-service/pkg/providerclient"
	rmrabbit "github.com/kudipay/settlement-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting settlement-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish audit events and jobs.
	var rabbitProducer rmrabbit.Publisher
	eventProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		rabbitProducer = &rmrabbit.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		rabbitProducer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the external clients.
	providerClient := providerclient.NewClient(cfg.ProviderAPIBaseURL, cfg.ProviderAPIKey)
	oracleClient := priceoracle.NewClient(cfg.PriceOracleBaseURL, cfg.PriceOracleAPIKey)

	// The quote cache prefers Redis and degrades to in-process memory. Quote
	// expiry is checked against the wall clock either way, so the fallback
	// only loses cross-instance visibility, not correctness.
	var quoteCache app.QuoteCache = app.NewMemoryQuoteCache()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-memory quote cache\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-memory quote cache\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				quoteCache = app.NewRedisQuoteCache(redisClient, "settlement:quote")
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// The audit emitter persists and publishes events off the request path.
	auditEmitter := app.NewAuditEmitter(repository, rabbitProducer, cfg.AuditBufferSize)
	defer auditEmitter.Close()

	// Initialize the core application service with its dependencies.
	settlementService := app.NewService(
		repository,
		providerClient,
		oracleClient,
		quoteCache,
		auditEmitter,
		rabbitProducer,
		time.Duration(cfg.QuoteTTLSeconds)*time.Second,
		decimal.NewFromFloat(cfg.QuoteMarkdownPercent),
	)

	// Wire up the consumers: bill status updates from the provider and the
	// liquidity reconciliation job queue.
	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; relying on http callback and sweep\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()

		billBindings := map[string]func([]byte) bool{
			"bill.status.completed": settlementService.HandleBillStatusMessage,
			"bill.status.failed":    settlementService.HandleBillStatusMessage,
			"bill.status.refunded":  settlementService.HandleBillStatusMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings(app.EventsExchange, cfg.BillStatusQueue, billBindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"bill status consumer start failed\" err=%v", err)
		}

		reconcileBindings := map[string]func([]byte) bool{
			"liquidity.reconcile.requested": settlementService.HandleLiquidityReconcileMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings(app.EventsExchange, cfg.LiquidityReconcileQueue, reconcileBindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"reconcile consumer start failed\" err=%v", err)
		}
	}

	// Schedule the stale purchase sweep.
	staleAfter := time.Duration(cfg.PurchaseStaleAfterMin) * time.Minute
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		resolved := settlementService.SweepStalePurchases(ctx, staleAfter)
		evicted := settlementService.EvictExpiredQuotes(ctx)
		if resolved > 0 || evicted > 0 {
			log.Printf("level=info component=sweep msg=\"sweep run complete\" purchases_resolved=%d quotes_evicted=%d", resolved, evicted)
		}
	}); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid sweep schedule\" schedule=%q err=%v", cfg.SweepSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the API handlers and router.
	settlementHandlers := api.NewSettlementHandlers(settlementService)
	router := api.SettlementRoutes(settlementHandlers, cfg.InternalAPIKey, staleAfter)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
