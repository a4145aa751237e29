package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/agent-ledger/config"
	"github.com/vnmchuo/agent-ledger/internal/api"
	"github.com/vnmchuo/agent-ledger/internal/billing"
	"github.com/vnmchuo/agent-ledger/internal/directory"
	"github.com/vnmchuo/agent-ledger/internal/executor"
	"github.com/vnmchuo/agent-ledger/internal/pricing"
	"github.com/vnmchuo/agent-ledger/internal/run"
	"github.com/vnmchuo/agent-ledger/internal/seeder"
	"github.com/vnmchuo/agent-ledger/internal/telemetry"
	"github.com/vnmchuo/agent-ledger/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("agent-ledger", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Init stores
	customerStore := directory.NewPostgresStore(pool)
	customers := directory.New(customerStore, rdb)
	runStore := run.NewPostgresStore(pool)
	billingStore := billing.NewPostgresStore(pool)

	// 6. Init run executor. The credential is read per run so a key added or
	// revoked between runs takes effect immediately.
	selector := executor.NewSelector(func() string {
		return os.Getenv("OPENAI_API_KEY")
	})
	tracer := otel.GetTracerProvider().Tracer("agent-ledger")
	exec := executor.New(runStore, customers, selector, pricing.DefaultTable(), executor.Options{
		InvokeTimeout: cfg.InvokeTimeout,
		MaxConcurrent: cfg.MaxConcurrentRuns,
		Tracer:        tracer,
	})

	// 7. Init rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.RunRateLimitPerMin)

	// 8. Init handler
	handler := api.NewHandler(exec, customers, billingStore, limiter, tracer)

	// 9. Seed demo customer if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedDemoCustomer(ctx, customerStore)
	}

	// 10. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"agent-ledger"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/customers", handler.HandleCreateCustomer)
		r.Get("/customers", handler.HandleListCustomers)
		r.Get("/customers/{id}/runs", handler.HandleListRuns)
		r.Get("/customers/{id}/runs/summary", handler.HandleRunSummary)
		r.Get("/customers/{id}/usage", handler.HandleUsage)

		r.Post("/runs", handler.HandleStartRun)
		r.Get("/runs/{id}", handler.HandleGetRun)
		r.Get("/runs/{id}/tool_calls", handler.HandleListRunToolCalls)
	})

	// 11. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("agent-ledger starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	// Let in-flight runs reach a terminal state before the pool closes.
	exec.Wait()
	log.Println("Server stopped")
}
