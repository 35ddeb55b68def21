package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"snowgate/internal/cache"
	"snowgate/internal/handlers"
	"snowgate/internal/httpserver"
	"snowgate/internal/limiter"
	"snowgate/internal/metrics"
	"snowgate/internal/query"
	"snowgate/internal/snow"
	"snowgate/internal/stream"
	"snowgate/internal/warmer"
	"snowgate/pkg/logging/logging"
)

type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	Backend string `env:"CACHE_BACKEND" envDefault:"memory"` // "memory" or "redis"

	RedisAddr string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`

	SnowBaseURL string `env:"SNOW_BASE_URL"`
	SnowToken   string `env:"SNOW_TOKEN"`

	// Upstream protection: concurrent in-flight calls and call starts
	// per second.
	MaxConcurrent int     `env:"UPSTREAM_MAX_CONCURRENT" envDefault:"4"`
	UpstreamRPS   float64 `env:"UPSTREAM_RPS" envDefault:"2"`
	MaxAttempts   int     `env:"UPSTREAM_MAX_ATTEMPTS" envDefault:"3"`

	// WarmGroups are the support groups pre-warmed across the search
	// tables at startup.
	WarmGroups  []string `env:"WARM_GROUPS" envSeparator:"," envDefault:"Service Desk,Network Ops,Field Support"`
	WarmOnStart bool     `env:"WARM_ON_START" envDefault:"true"`

	SearchTables []string `env:"SEARCH_TABLES" envSeparator:"," envDefault:"incident,change_task,sc_task"`
	TicketFields []string `env:"TICKET_FIELDS" envSeparator:"," envDefault:"number,short_description,state,priority,assignment_group,assigned_to,sys_created_on"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger.Error("config parse failed", zap.Error(err))
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("cache_backend", cfg.Backend),
		zap.String("snow_base_url", cfg.SnowBaseURL),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Float64("upstream_rps", cfg.UpstreamRPS),
		zap.Bool("warm_on_start", cfg.WarmOnStart),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Cache store + bounded stream log -----
	store := cache.NewStore(cache.Config{
		Backend: cfg.Backend,
		Prefix:  "snowgate",
	}, redisClient)
	store = cache.NewLoggingStore(store)

	events := stream.NewLog(stream.Config{
		Backend: cfg.Backend,
		Prefix:  "snowgate",
	}, redisClient)
	memoryEvents, _ := events.(*stream.MemoryLog)

	// ----- Upstream client + retry + admission gate -----
	snowClient, err := snow.NewClient(snow.Config{
		BaseURL: cfg.SnowBaseURL,
		Token:   cfg.SnowToken,
	}, logger)
	if err != nil {
		return err
	}
	defer snowClient.Close()

	retryer := snow.NewRetryer(cfg.MaxAttempts, logger)
	gate := limiter.New(cfg.MaxConcurrent, rate.NewLimiter(rate.Limit(cfg.UpstreamRPS), 1))

	// ----- Query core -----
	queryService := query.New(store, events, gate, snowClient, retryer, nil, query.Config{
		Fields:       cfg.TicketFields,
		SearchTables: cfg.SearchTables,
	}, logger)

	// ----- Cache warmer -----
	var combos []warmer.Combo
	for _, table := range cfg.SearchTables {
		for _, group := range cfg.WarmGroups {
			combos = append(combos, warmer.Combo{
				Table: table,
				Group: strings.TrimSpace(group),
			})
		}
	}
	cacheWarmer := warmer.New(warmer.NewState(), queryService, warmer.Config{
		Combos: combos,
	}, logger)

	if cfg.WarmOnStart {
		go func() {
			if err := cacheWarmer.WarmAll(context.Background()); err != nil {
				logger.Warn("startup warm sweep aborted", zap.Error(err))
			}
		}()
	}

	// ----- Handlers -----
	tickets := handlers.NewTicketsHandler(queryService, cacheWarmer, memoryEvents)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, tickets)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Write budget covers a full retried upstream round trip.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", cfg.Backend),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
