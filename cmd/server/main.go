package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kopra/internal/platform/config"
	"kopra/internal/platform/database"
	"kopra/internal/platform/health"
	producer "kopra/internal/platform/kafka/producer"
	"kopra/internal/platform/logger"
	"kopra/internal/platform/migrate"
	platformredis "kopra/internal/platform/redis"
	"kopra/internal/provision"
	"kopra/internal/schemaclient"
	"kopra/internal/session"
	"kopra/internal/tenant/handler"
	tenantmetrics "kopra/internal/tenant/metrics"
	"kopra/internal/tenant/resolver"
	"kopra/internal/tenant/service"
	registrationstore "kopra/internal/tenant/store/registration"
	tenantstore "kopra/internal/tenant/store/tenant"
	httptransport "kopra/internal/transport/http"
	"kopra/migrations/control"
	"kopra/migrations/tenantbase"
	"kopra/pkg/platform/audit"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing kopra",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	pool, err := database.New(cfg.Database)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close() //nolint:errcheck // process is exiting

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	applied, err := migrate.Apply(startupCtx, pool.DB(), "public", control.FS, log)
	if err != nil {
		log.Error("control-plane migration failed", "error", err)
		os.Exit(1)
	}
	if applied > 0 {
		log.Info("control-plane migrations applied", "count", applied)
	}

	tenants := tenantstore.NewPostgres(pool.DB())
	registrations := registrationstore.NewPostgres(pool.DB())

	provisioner := provision.New(pool.DB(), tenants, tenantbase.FS,
		provision.WithLogger(log),
	)

	metrics := tenantmetrics.New()

	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(metrics),
		service.WithStoreTx(newTenantPostgresTx(pool.DB())),
	}

	var kafkaProducer *producer.Producer
	if cfg.Kafka.Brokers != "" {
		kafkaProducer, err = producer.New(cfg.Kafka, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaProducer.Close()
		publisher := audit.NewPublisher(kafkaProducer, cfg.Kafka.AuditTopic, log)
		serviceOpts = append(serviceOpts, service.WithAuditPublisher(publisher))
	} else {
		log.Warn("kafka brokers not configured, audit events logged only")
	}

	svc := service.New(tenants, registrations, provisioner, serviceOpts...)

	// The resolver cache is Redis-backed when configured so resolution
	// survives restarts and is shared across replicas.
	var resolverCache resolver.Cache = resolver.NewMemoryCache(cfg.Resolver.CacheTTL)
	var redisClient *platformredis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = platformredis.New(cfg.Redis)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close() //nolint:errcheck // process is exiting
		resolverCache = resolver.NewRedisCache(redisClient.Client, cfg.Resolver.CacheTTL, log)
	}

	res := resolver.New(tenants, resolverCache,
		resolver.WithLogger(log),
		resolver.WithMetrics(metrics),
	)

	clients := schemaclient.New(
		schemaclient.NewPostgresFactory(cfg.Database),
		cfg.Cache,
		schemaclient.WithLogger(log),
		schemaclient.WithMetrics(schemaclient.NewMetrics()),
	)
	defer clients.Close()

	sessions := session.NewService(cfg.JWTSigningKey, "kopra", 24*time.Hour)

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterCheck("database", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Health(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Tenants:    handler.New(svc, log),
		Resolver:   res,
		Clients:    clients,
		Sessions:   sessions,
		Health:     healthHandler,
		AdminToken: cfg.AdminToken,
		Logger:     log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
