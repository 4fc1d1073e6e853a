package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/neogate/internal/auth"
	"github.com/GoPolymarket/neogate/internal/broker"
	"github.com/GoPolymarket/neogate/internal/config"
	"github.com/GoPolymarket/neogate/internal/credentials"
	"github.com/GoPolymarket/neogate/internal/events"
	"github.com/GoPolymarket/neogate/internal/middleware"
	"github.com/GoPolymarket/neogate/internal/order"
	"github.com/GoPolymarket/neogate/internal/otp"
	"github.com/GoPolymarket/neogate/internal/pkg/logger"
	"github.com/GoPolymarket/neogate/internal/repository"
	"github.com/GoPolymarket/neogate/internal/service"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load(os.Getenv("NEOGATE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 0. Initialize Logger
	logger.Setup(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// 2. Initialize Persistence
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = repository.NewRedisClient(cfg.Redis)
		if err == nil {
			logger.Info("✅ Connected to Redis")
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back to memory", "error", err)
			rdb = nil
		}
	}

	var db *gorm.DB
	if cfg.Database.DSN != "" {
		db, err = repository.NewDB(cfg.Database)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
		} else {
			logger.Error("⚠️ Failed to connect to DB, audit logs will be file-only", "error", err)
			db = nil
		}
	}

	// Audit Persistence (Postgres / Redis > Local File)
	var auditRepo service.AuditRepo
	switch {
	case cfg.Audit.Store == "postgres" && db != nil:
		auditRepo = repository.NewPostgresAuditRepo(db)
	case cfg.Audit.Store == "redis" && rdb != nil:
		auditRepo = repository.NewRedisAuditRepo(rdb, cfg.Audit.ListKey, cfg.Audit.ListMax)
	}

	var idempotencyStore middleware.IdempotencyStore
	switch {
	case cfg.Idempotency.Store == "redis" && rdb != nil:
		idempotencyStore = repository.NewRedisIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL())
	case cfg.Idempotency.Store == "postgres" && db != nil:
		idempotencyStore = repository.NewPostgresIdempotencyStore(db, cfg.Redis.IdempotencyTTL())
	default:
		idempotencyStore = middleware.NewInMemIdempotencyStore(cfg.Redis.IdempotencyTTL())
	}

	var sessionCache auth.SessionCache
	if cfg.Session.Cache == "redis" && rdb != nil {
		sessionCache = repository.NewRedisSessionCache(rdb, cfg.Session.CacheKey)
	}

	// 3. Initialize Core Services
	sink := events.LogSink{}
	client := broker.NewClientFromConfig(cfg.Broker)
	authenticator := auth.NewAuthenticator(client,
		otp.NewGenerator(cfg.Auth.OTPPeriod(), cfg.Auth.OTPDigits),
		auth.ConfigFrom(cfg.Auth), sink)
	sessions := auth.NewManager(authenticator,
		credentials.NewFileStore(cfg.Credentials.File, cfg.Credentials.EnvFallback),
		sessionCache, cfg.Session.TTL())
	engine := order.NewEngine(client, order.ConfigFrom(cfg.Order, cfg.Broker), sink)
	tradingSvc := service.NewTradingService(sessions, engine)

	// Risk Usage (Redis > Memory)
	if cfg.Risk.Enabled() {
		var usage service.UsageRepo = service.NewRiskUsageStore()
		if cfg.Risk.UsageStore == "redis" && rdb != nil {
			usage = repository.NewRedisUsageRepo(rdb)
		}
		tradingSvc.WithRisk(service.NewRiskEngine(usage, cfg.Risk))
	}

	auditSvc, err := service.NewAuditService(cfg.Audit.Dir, auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	stopCleanup := make(chan struct{})
	if cleaner, ok := auditRepo.(*repository.PostgresAuditRepo); ok && cfg.Database.AuditRetentionDays > 0 {
		go runAuditCleanup(cleaner, time.Duration(cfg.Database.AuditRetentionDays)*24*time.Hour, stopCleanup)
	}

	// 4. Setup Router
	r := newRouter(cfg, routerDeps{
		trading:     tradingSvc,
		audit:       auditSvc,
		idempotency: idempotencyStore,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit.QPS, cfg.RateLimit.Burst),
	})

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("🚀 NeoGate started", "port", cfg.Server.Port, "read_only", cfg.Server.ReadOnly)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	// 下单请求可能正在等待券商响应，留足时间让结果落盘
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Broker.Timeout()+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	close(stopCleanup)
	auditSvc.Close()
	if rdb != nil {
		_ = rdb.Close()
	}

	logger.Info("Server exiting")
}

func runAuditCleanup(repo *repository.PostgresAuditRepo, retention time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := repo.Cleanup(ctx, retention); err != nil {
			logger.Warn("audit cleanup failed", "error", err)
		}
		cancel()

		select {
		case <-ticker.C:
		case <-stop:
			return
		}
	}
}
