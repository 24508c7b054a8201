package main

import (
	"context"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tonyphoesis/phoesis-website/libs/config"
	"github.com/tonyphoesis/phoesis-website/libs/db"
	"github.com/tonyphoesis/phoesis-website/libs/httpx"
	"github.com/tonyphoesis/phoesis-website/libs/kafkax"
	otelx "github.com/tonyphoesis/phoesis-website/libs/otel"
	"github.com/tonyphoesis/phoesis-website/libs/outbox"
	"github.com/tonyphoesis/phoesis-website/libs/runtime"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/consumer"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/email"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/inbox"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/notify"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/storage"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	officeZone, err := time.LoadLocation(config.String("OFFICE_TIMEZONE", "America/Phoenix"))
	if err != nil {
		panic(err)
	}

	from := config.String("EMAIL_FROM", email.DefaultFrom)
	var sender email.Sender
	switch provider := strings.ToLower(config.String("EMAIL_PROVIDER", "smtp")); provider {
	case "resend":
		sender = email.NewResendSender(
			config.String("RESEND_API_URL", email.DefaultResendURL),
			config.String("RESEND_API_KEY", ""),
			from,
		)
	case "noop":
		sender = email.NewNoopSender()
	default:
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     config.String("SMTP_HOST", "mailpit"),
			Port:     config.String("SMTP_PORT", "1025"),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
			From:     from,
		})
	}
	logger.Info("email sender configured", "provider", sender.ProviderID())

	processor := notify.NewProcessor(notify.Config{
		Sender:     sender,
		Recorder:   storage.NewRepository(pool),
		Team:       config.List("TEAM_EMAILS", []string{"tony@phoesis.io", "eric@phoesis.io"}),
		OfficeZone: officeZone,
		Logger:     logger,
	})

	brokers := config.String("KAFKA_BROKERS", "")
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics: config.List("KAFKA_CONSUME_TOPICS", []string{
			outbox.EventMeetingBooked,
			outbox.EventContactReceived,
		}),
	}, processor.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeUntilDone(ctx, srv, logger, 10*time.Second)
}
