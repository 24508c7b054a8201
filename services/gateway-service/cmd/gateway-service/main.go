package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tonyphoesis/phoesis-website/libs/config"
	"github.com/tonyphoesis/phoesis-website/libs/grpcx"
	"github.com/tonyphoesis/phoesis-website/libs/httpx"
	otelx "github.com/tonyphoesis/phoesis-website/libs/otel"
	"github.com/tonyphoesis/phoesis-website/libs/runtime"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	upstreams := upstreamConfig{
		Booking: mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		Contact: mustParseURL(config.String("CONTACT_URL", "http://contact-service:8084")),
	}
	var checks []runtime.ReadyCheck
	if addr := config.String("BOOKING_GRPC_ADDR", ""); addr != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "booking", Check: grpcHealthCheck(addr, "booking")})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, upstreams, otelhttp.NewTransport(http.DefaultTransport))

	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 25*time.Second)
	if err != nil {
		panic(err)
	}
	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", nil),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(requestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeUntilDone(ctx, srv, logger, 10*time.Second)
}

type upstreamConfig struct {
	Booking *url.URL
	Contact *url.URL
}

// registerRoutes exposes the public website API on one origin.
func registerRoutes(mux *http.ServeMux, up upstreamConfig, transport http.RoundTripper) {
	bookingProxy := httputil.NewSingleHostReverseProxy(up.Booking)
	contactProxy := httputil.NewSingleHostReverseProxy(up.Contact)
	bookingProxy.Transport = transport
	contactProxy.Transport = transport

	registerProxy(mux, "/api/v1/booking", bookingProxy)
	registerProxy(mux, "/api/v1/contact", contactProxy)
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// grpcHealthCheck reports the upstream's grpc.health.v1 status as a readiness check.
func grpcHealthCheck(addr, service string) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := grpcx.CheckHealth(ctx, addr, service, grpcx.DialOptions{Timeout: 2 * time.Second})
		if err != nil {
			return err
		}
		if !ok {
			return errors.New(service + " not serving")
		}
		return nil
	}
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
