package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicportal/libs/auth"
	"github.com/md-rashed-zaman/clinicportal/libs/config"
	"github.com/md-rashed-zaman/clinicportal/libs/db"
	"github.com/md-rashed-zaman/clinicportal/libs/grpcx"
	"github.com/md-rashed-zaman/clinicportal/libs/httpx"
	"github.com/md-rashed-zaman/clinicportal/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicportal/libs/otel"
	"github.com/md-rashed-zaman/clinicportal/libs/runtime"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/expiry"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/payments"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	_ = config.LoadDotEnv()

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

	st, err := openStores(ctx, config.String("STORE_DRIVER", "postgres"), logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	defer st.Close()
	if err := st.seed(ctx, config.String("DOCTOR_SEED_FILE", ""), logger); err != nil {
		logger.Error("doctor seed failed", "err", err)
		panic(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []booking.Option{booking.WithMetrics(m)}
	readyChecks := []runtime.ReadyCheck{}
	if st.pool != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(st.pool)})
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0, 0, 15),
		})
		defer func() { _ = rdb.Close() }()
		opts = append(opts, booking.WithCache(cache.NewRedisStatusCache(rdb, config.Duration("AVAILABILITY_CACHE_SECONDS", 30, time.Second))))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	}

	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		opts = append(opts, booking.WithPayments(payments.NewStripeStarter(key, config.String("STRIPE_CURRENCY", "usd"))))
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; card bookings cannot start a payment")
	}

	svc := booking.NewService(st.directory, st.store, logger, booking.Config{
		Location:           runtime.Location(config.String("CLINIC_TIMEZONE", "UTC")),
		DefaultHorizonDays: config.Int("BOOKING_HORIZON_DAYS", 30, 1, 90),
		MaxHorizonDays:     90,
		Expiry: lifecycle.ExpiryPolicy{
			Card:        config.Duration("CARD_PAYMENT_TTL_MINUTES", 15, time.Minute),
			MobileMoney: config.Duration("MOBILE_MONEY_TTL_MINUTES", 0, time.Minute),
		},
	}, opts...)

	processor := payments.NewProcessor(svc, st.inbox, logger, m)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		if st.pool != nil {
			publisher := outbox.NewPublisher(st.pool, st.outboxRepo, logger, outbox.PublisherConfig{
				Brokers:   brokers,
				PollEvery: config.Duration("OUTBOX_POLL_MS", 2000, time.Millisecond),
				BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50, 1, 500),
				Counter:   m,
			})
			go publisher.Run(ctx)
		}
		if topic := config.String("KAFKA_PAYMENT_TOPIC", "payments.mobile_money.result.v1"); topic != "" {
			paymentConsumer := consumer.New(logger, st.inbox, consumer.Config{
				Brokers:  brokers,
				GroupID:  config.String("KAFKA_GROUP_ID", "booking-service"),
				Topic:    topic,
				Identify: payments.MessageMeta,
			}, processor.HandleMessage)
			go paymentConsumer.Run(ctx)
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox relay and payment consumer disabled")
	}

	sweeper := expiry.NewWorker(svc, logger, expiry.WorkerConfig{
		Interval: config.Duration("EXPIRY_SWEEP_SECONDS", 30, time.Second),
	})
	go sweeper.Run(ctx)

	appointments := handlers.NewBookingHandler(svc, logger)
	var bookLimit httpx.Middleware
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120, 1, 100000)
	if rdb != nil {
		bookLimit = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "booking:ratelimit", callerKey).Middleware(logger, true)
	} else {
		bookLimit = httpx.NewRateLimiter(perMinute, time.Minute, callerKey).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/api/v1/appointments/book", httpx.Chain(http.HandlerFunc(appointments.Book), bookLimit))
	mux.HandleFunc("/api/v1/appointments/confirm", appointments.Confirm)
	mux.HandleFunc("/api/v1/appointments/cancel", appointments.Cancel)
	mux.HandleFunc("/api/v1/appointments/complete", appointments.Complete)
	mux.HandleFunc("/api/v1/appointments", appointments.List)
	mux.HandleFunc("/api/v1/public/slots", appointments.Slots)
	mux.HandleFunc("/api/v1/public/availability", appointments.Availability)
	mux.Handle("/api/v1/payments/webhooks/stripe", payments.NewStripeWebhook(
		config.String("STRIPE_WEBHOOK_SECRET", ""),
		config.Duration("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300, time.Second),
		processor, logger,
	))
	mux.Handle("/api/v1/payments/callback", payments.NewCallback(config.String("PAYMENT_CALLBACK_SECRET", ""), processor, logger))

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "dev-secret")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		verifier.JWKS = auth.NewJWKSClient(jwksURL, config.Duration("JWKS_CACHE_SECONDS", 300, time.Second))
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		auth.Authenticate(verifier),
		httpx.WithAccessLog(logger, auth.UserIDFromContext),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if grpcPort := config.String("GRPC_PORT", "9093"); grpcPort != "" {
		grpcSrv, health := grpcx.NewServer(logger)
		health.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			panic(err)
		}
		go func() {
			logger.Info("grpc server starting", "addr", lis.Addr().String())
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
		defer func() {
			health.Shutdown()
			grpcSrv.GracefulStop()
		}()
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// callerKey rate limits signed-in callers by identity and everyone else by address.
func callerKey(r *http.Request) string {
	if id := auth.UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + httpx.ClientIP(r)
}
