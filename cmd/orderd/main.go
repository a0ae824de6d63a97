package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mvaldes/food-ordering-sagas/internal/collaborator"
	natspub "github.com/mvaldes/food-ordering-sagas/internal/events/nats"
	"github.com/mvaldes/food-ordering-sagas/internal/httpx"
	"github.com/mvaldes/food-ordering-sagas/internal/ordersaga"
	"github.com/mvaldes/food-ordering-sagas/internal/pkg/telemetry"
	"github.com/mvaldes/food-ordering-sagas/internal/saga"
	"github.com/mvaldes/food-ordering-sagas/internal/saga/instance/sqlite"
	"github.com/mvaldes/food-ordering-sagas/internal/saga/lock"
	lockredis "github.com/mvaldes/food-ordering-sagas/internal/saga/lock/redis"
)

func main() {
	serviceName := getEnv("OTEL_SERVICE_NAME", "orderd")
	telemetry.InitLogger(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName)
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	// --- Stores ---
	store, err := sqlite.Open(getEnv("SAGA_DB_PATH", "sagas.db"))
	if err != nil {
		slog.Error("failed to open saga database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	lockStore := lockredis.NewStore(getEnv("REDIS_ADDR", "localhost:6379"))
	defer lockStore.Close()
	locks := lock.NewManager(lockStore, getDuration("SAGA_LOCK_TTL", time.Hour))

	// --- Event publisher ---
	var events saga.EventPublisher = saga.NopPublisher{}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		publisher, err := natspub.NewPublisher(natsURL)
		if err != nil {
			slog.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		events = publisher
	}

	// --- Saga wiring ---
	orders := collaborator.NewOrderService(getEnv("ORDER_SERVICE_URL", "http://localhost:8081"))
	kitchen := collaborator.NewKitchenService(getEnv("KITCHEN_SERVICE_URL", "http://localhost:8082"))
	accounting := collaborator.NewAccountingService(getEnv("ACCOUNTING_SERVICE_URL", "http://localhost:8083"))

	registry := saga.NewRegistry[ordersaga.CreateOrderData](
		ordersaga.NewDefinition(orders, kitchen, accounting),
	)
	manager := saga.NewManager(registry, store, saga.Options{
		Locks:  locks,
		Events: events,
	})

	monitor := saga.NewTimeoutMonitor(manager, store,
		getDuration("SAGA_TIMEOUT", 30*time.Minute),
		getDuration("SAGA_TIMEOUT_SWEEP_INTERVAL", time.Minute),
	)
	go monitor.Run(ctx)

	// --- HTTP server ---
	handler := httpx.NewHandler(manager, store)
	server := &http.Server{
		Addr:    getEnv("HTTP_ADDR", ":8080"),
		Handler: httpx.NewRouter(handler),
	}

	go func() {
		slog.Info("saga orchestrator running", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("saga orchestrator stopped")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("invalid duration, using default", "key", key, "value", value, "default", fallback)
	}
	return fallback
}
