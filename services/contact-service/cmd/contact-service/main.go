package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tonyphoesis/phoesis-website/libs/config"
	"github.com/tonyphoesis/phoesis-website/libs/db"
	"github.com/tonyphoesis/phoesis-website/libs/httpx"
	"github.com/tonyphoesis/phoesis-website/libs/kafkax"
	otelx "github.com/tonyphoesis/phoesis-website/libs/otel"
	"github.com/tonyphoesis/phoesis-website/libs/outbox"
	"github.com/tonyphoesis/phoesis-website/libs/runtime"
	"github.com/tonyphoesis/phoesis-website/services/contact-service/internal/handlers"
	"github.com/tonyphoesis/phoesis-website/services/contact-service/internal/storage"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "contact-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 5})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository()
	repo := storage.NewContactRepository(pool, outboxRepo)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 5)
	if err != nil {
		panic(err)
	}
	limiter := httpx.NewRateLimiter(limit, time.Minute).Middleware()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		limiter = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "rl:contact").Middleware(logger, true)
	}

	contactHandler := handlers.NewContactHandler(repo, logger)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/v1/contact", httpx.Chain(http.HandlerFunc(contactHandler.Submit),
		limiter,
		httpx.WithBodyLimit(32<<10),
		httpx.WithTimeout(10*time.Second),
	))
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", nil)}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "contact")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeUntilDone(ctx, srv, logger, 10*time.Second)
}
