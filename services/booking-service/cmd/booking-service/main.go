package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tonyphoesis/phoesis-website/libs/config"
	"github.com/tonyphoesis/phoesis-website/libs/db"
	"github.com/tonyphoesis/phoesis-website/libs/grpcx"
	"github.com/tonyphoesis/phoesis-website/libs/httpx"
	"github.com/tonyphoesis/phoesis-website/libs/kafkax"
	otelx "github.com/tonyphoesis/phoesis-website/libs/otel"
	"github.com/tonyphoesis/phoesis-website/libs/outbox"
	"github.com/tonyphoesis/phoesis-website/libs/runtime"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/availability"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/calendar"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/handlers"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/policy"
	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/storage"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	pol, err := policy.Load(config.String("POLICY_FILE", ""))
	if err != nil {
		logger.Error("working hours policy invalid", "err", err)
		os.Exit(1)
	}
	engine, err := availability.New(pol)
	if err != nil {
		logger.Error("availability engine init failed", "err", err)
		os.Exit(1)
	}
	logger.Info("working hours policy loaded",
		"home_zone", pol.HomeZone.String(),
		"daily_start", pol.DailyStart.String(),
		"daily_end", pol.DailyEnd.String(),
		"slot", pol.SlotDuration.String(),
	)

	calCfg, err := calendar.ConfigFromEnv()
	if err != nil {
		panic(err)
	}
	provider, err := calendar.NewProvider(ctx, calCfg, logger)
	if err != nil {
		logger.Error("calendar provider init failed", "err", err, "provider", calCfg.Kind)
		os.Exit(1)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository()
	repo := storage.NewBookingRepository(pool, outboxRepo)

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

	handlerCfg := handlers.BookingConfig{
		Engine:     engine,
		Listing:    provider,
		Calendar:   provider,
		Store:      repo,
		TeamEmails: config.List("TEAM_EMAILS", nil),
		Logger:     logger,
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		cacheTTL, err := config.Duration("AVAILABILITY_CACHE_TTL", 30*time.Second)
		if err != nil {
			panic(err)
		}
		handlerCfg.Listing = calendar.NewCache(provider, rdb, cacheTTL, "", logger)
		handlerCfg.Idempotency = storage.NewIdempotency(rdb, 24*time.Hour)
	}
	bookingHandler := handlers.NewBookingHandler(handlerCfg)

	if grpcPort := config.String("GRPC_PORT", ""); grpcPort != "" {
		startGRPCHealth(ctx, logger, grpcPort, checks)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	limiter := publicLimiter(logger, rdb)
	mux.Handle("/api/v1/booking", httpx.Chain(bookingHandler,
		httpx.OnlyMethods(limiter, http.MethodPost),
		httpx.WithBodyLimit(16<<10),
		httpx.WithTimeout(20*time.Second),
	))
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", nil)}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeUntilDone(ctx, srv, logger, 10*time.Second)
}

// publicLimiter throttles form submissions, shared through Redis when it is configured.
func publicLimiter(logger *slog.Logger, rdb *redis.Client) httpx.Middleware {
	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		panic(err)
	}
	if rdb != nil && config.Bool("RATE_LIMIT_REDIS", true) {
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "rl:booking").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

// startGRPCHealth serves grpc.health.v1 and mirrors the /readyz checks into it.
func startGRPCHealth(ctx context.Context, logger *slog.Logger, port string, checks []runtime.ReadyCheck) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		logger.Error("grpc listen failed", "err", err, "port", port)
		return
	}
	srv := grpcx.NewServer(logger)
	go func() {
		if err := srv.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			ready := len(runtime.RunChecks(ctx, 2*time.Second, checks...)) == 0
			srv.SetServing("", ready)
			srv.SetServing("booking", ready)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
