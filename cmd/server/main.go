package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"collegehub-backend/internal/config"
	"collegehub-backend/internal/db"
	httpapi "collegehub-backend/internal/http"
	"collegehub-backend/internal/logging"
	"collegehub-backend/internal/migrations"
	"collegehub-backend/internal/models"
	"collegehub-backend/internal/ratelimit"
	"collegehub-backend/internal/scheduler"
	"collegehub-backend/internal/services"
	"collegehub-backend/internal/store"
	"collegehub-backend/internal/store/memory"
	"collegehub-backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	cleanupLogs, err := logging.Setup(cfg.LogDir, cfg.LogRetentionDays)
	if err != nil {
		log.Printf("logger setup failed: %v", err)
	} else {
		defer cleanupLogs()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeStore := openStore(ctx, cfg)
	defer closeStore()

	for _, kind := range []string{models.KindCurriculum, models.KindLibrary} {
		if _, err := services.EnsureStoragePath(cfg.UploadPath, kind); err != nil {
			log.Fatalf("uploads: %v", err)
		}
	}

	limiter, closeLimiter := openLimiter(cfg)
	defer closeLimiter()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := services.NewMetricsHub()
	go hub.Run(ctx)
	history := services.NewMetricsHistory(500)
	interval := time.Duration(cfg.MetricsSampleSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	sampler := services.NewMetricsSampler(cfg.MetricsDiskPath, interval, history, hub, registry)
	go sampler.Run(ctx)

	server := httpapi.NewServer(cfg, repo, limiter, hub, history, registry)

	cronJob, err := scheduler.Start(cfg.ReconcileSchedule, server.Clubs)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	addr := ":" + cfg.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s (store=%s, rate limit=%s)", addr, cfg.StoreDriver, cfg.RateLimitBackend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
	scheduler.Stop(ctxShutdown, cronJob)
	log.Printf("shutdown complete")
}

// openStore picks the adapter once. A postgres failure is fatal; there
// is no fallback to the memory store.
func openStore(ctx context.Context, cfg config.Config) (store.Repository, func()) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Printf("store: in-memory, data is lost on restart")
		return memory.New(), func() {}
	case config.StoreDriverPostgres:
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		if err := migrations.Apply(ctx, database); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		return postgres.New(database), func() { _ = database.Close() }
	default:
		log.Fatalf("unknown STORE_DRIVER %q", cfg.StoreDriver)
		return nil, nil
	}
}

func openLimiter(cfg config.Config) (ratelimit.Limiter, func()) {
	if cfg.RateLimitBackend == config.RateLimitRedis {
		limiter := ratelimit.NewRedis(cfg.RedisAddr, cfg.RateLimitPerMin)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if !limiter.Healthy(ctx) {
			log.Printf("rate limit: redis at %s not reachable yet, requests pass until it is", cfg.RedisAddr)
		}
		return limiter, func() { _ = limiter.Close() }
	}
	return ratelimit.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin), func() {}
}
