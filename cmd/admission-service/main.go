package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pso/admission-service/internal/config"
	"pso/admission-service/internal/httpapi"
	"pso/admission-service/internal/notify"
	"pso/admission-service/internal/store/postgres"
	"pso/admission-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("admission-service", cfg.OTLPEndpoint, cfg.OTLPInsecure)

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool, postgres.Options{
		SlotCapacity: cfg.SlotCapacity,
	})
	notifier := notify.NewNotifier(store)
	handler := httpapi.NewHandler(store, notifier)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		ActorPerMinute: cfg.ActorRateLimitPerMinute,
		ActorBurst:     cfg.ActorRateLimitBurst,
	})

	routes := httpapi.IdentityMiddleware(handler.Routes())
	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(routes)), "admission-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("admission-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("telemetry shutdown error: %v", err)
	}
}
