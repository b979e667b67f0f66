package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/poupadigital/poupapush/internal/api"
	"github.com/poupadigital/poupapush/internal/circuitbreaker"
	"github.com/poupadigital/poupapush/internal/config"
	"github.com/poupadigital/poupapush/internal/db"
	"github.com/poupadigital/poupapush/internal/dispatch"
	"github.com/poupadigital/poupapush/internal/mail"
	"github.com/poupadigital/poupapush/internal/metrics"
	"github.com/poupadigital/poupapush/internal/observ"
	"github.com/poupadigital/poupapush/internal/push"
	"github.com/poupadigital/poupapush/internal/redis"
	"github.com/poupadigital/poupapush/internal/sqs"
	"github.com/poupadigital/poupapush/internal/whatsapp"
	"github.com/poupadigital/poupapush/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Local development convenience, missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting poupapush server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName),
	)

	repo := db.NewRepository(database, logger)

	// Redis backs the dispatch lock and the public rate limiter. Both
	// degrade to no-ops when it is unreachable.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, dispatch locking and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	// dispatchLock stays a nil interface when redis is down, a typed
	// nil pointer would slip past the dispatcher's nil check.
	var dispatchLock dispatch.Locker
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		dispatchLock = redis.NewDispatchLock(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: 1 * time.Minute,
		})
		defer redisClient.Close()
	}

	var producer *sqs.Producer
	if cfg.SQSQueueURL != "" {
		producer, err = sqs.NewProducer(ctx, sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, analytics events stay in postgres only",
				zap.Error(err),
			)
		} else {
			defer producer.Close()
		}
	}

	// Web push needs VAPID keys. Without them every send goes to the
	// log sender, which keeps local development working.
	var sender push.Sender
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		sender, err = push.NewWebPushSender(push.WebPushConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create web push sender: %w", err)
		}
	} else {
		logger.Warn("VAPID keys not configured, pushes go to the log sender")
		sender = push.NewLogSender(logger)
	}

	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("webpush"), logger)
	protected := push.NewProtectedSender(sender, breaker, logger)

	dispatcher := dispatch.New(repo, dispatchLock, protected, logger)

	sched := worker.New(repo, dispatcher, worker.Config{
		PollInterval: time.Duration(cfg.SchedulerPollSeconds) * time.Second,
		BatchSize:    cfg.SchedulerBatchSize,
	}, logger)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	go sched.Start(schedCtx)

	logger.Info("campaign scheduler started",
		zap.Int("poll_seconds", cfg.SchedulerPollSeconds),
	)

	var mailer api.Mailer
	mailer, err = mail.NewSESMailer(ctx, mail.SESConfig{
		Region:    cfg.AWSRegion,
		FromEmail: cfg.SESFromEmail,
	}, logger)
	if err != nil {
		logger.Warn("ses unavailable, emails go to the log mailer", zap.Error(err))
		mailer = mail.NewLogMailer(logger)
	}

	var pixSender api.PixSender
	if cfg.UltraMsgInstanceID != "" && cfg.UltraMsgToken != "" {
		wa, err := whatsapp.NewClient(whatsapp.Config{
			InstanceID: cfg.UltraMsgInstanceID,
			Token:      cfg.UltraMsgToken,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create whatsapp client: %w", err)
		}
		pixSender = wa
	} else {
		logger.Warn("ultramsg not configured, whatsapp channel disabled")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// The storefront calls this API directly from the browser.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://poupagenda.site", "https://*.poupagenda.site", "http://localhost:*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	var handler *api.Handler
	if producer != nil {
		handler = api.NewHandlerWithQueue(logger, repo, dispatcher, producer)
	} else {
		handler = api.NewHandler(logger, repo, dispatcher)
	}
	messaging := api.NewMessagingHandler(logger, mailer, pixSender)

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

		r.Post("/leads", handler.SaveLead)
		r.Post("/leads/update", handler.UpdateLead)
		r.Get("/leads", handler.ListLeads)
		r.Post("/leads/{id}/send", handler.SendToLead)

		r.Post("/campaigns", handler.CreateCampaign)
		r.Get("/campaigns", handler.ListCampaigns)
		r.Post("/campaigns/{id}/send", handler.SendCampaign)

		r.Post("/analytics", handler.TrackEvent)

		r.Post("/email", messaging.SendEmail)
		r.Post("/whatsapp/pix", messaging.SendPix)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
