package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"course-marketplace/config"
	"course-marketplace/database"
	adminapi "course-marketplace/internal/api/admin"
	authapi "course-marketplace/internal/api/auth"
	"course-marketplace/internal/api/billing"
	coursesapi "course-marketplace/internal/api/courses"
	"course-marketplace/internal/api/midtranswebhook"
	stripewebhooks "course-marketplace/internal/api/stripewebhook"
	usersapi "course-marketplace/internal/api/users"
	routes "course-marketplace/internal/app/http"
	"course-marketplace/internal/app/http/middleware"
	"course-marketplace/internal/checkout"
	"course-marketplace/internal/domain/payments"
	"course-marketplace/internal/infra/kafka"
	"course-marketplace/internal/infra/midtrans"
	"course-marketplace/internal/infra/stripe"
	"course-marketplace/internal/metrics"
	"course-marketplace/internal/relay"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type eventPublisher interface {
	relay.Publisher
	Close() error
}

func main() {
	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)
	log.Info("starting course-marketplace", slog.String("env", cfg.Env), slog.String("provider", cfg.PaymentProvider))

	db, err := database.Open(cfg, log)
	if err != nil {
		log.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}

	metrics.Register()

	gateway := newGateway(cfg)
	resolver := checkout.NewResolver(db, gateway, cfg.Timeouts.Provider, log)
	committer := checkout.NewCommitter(db, checkout.DefaultRetry, log)
	settler := checkout.NewSettler(resolver, committer, cfg.Timeouts.WebhookAck, cfg.Timeouts.Commit, log)
	initiator := checkout.NewInitiator(db, gateway, committer, checkout.InitiatorConfig{
		FrontendURL:     cfg.FrontendURL,
		Currency:        cfg.Currency,
		ProviderTimeout: cfg.Timeouts.Provider,
	}, log)
	reconciler := checkout.NewReconciler(db, resolver, committer, checkout.ReconcilerConfig{
		Schedule:     cfg.Reconcile.Schedule,
		PendingAfter: cfg.Reconcile.PendingAfter,
		BatchSize:    cfg.Reconcile.BatchSize,
	}, log)
	if err := reconciler.Start(); err != nil {
		log.Error("failed to start reconciler", slog.Any("error", err))
		os.Exit(1)
	}

	publisher := newPublisher(cfg, log)
	relayCtx, stopRelay := context.WithCancel(context.Background())
	var relayWG sync.WaitGroup
	relayWG.Add(1)
	go func() {
		defer relayWG.Done()
		relay.New(db, publisher, relay.Config{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
		}, log.With(slog.String("component", "outbox"))).Run(relayCtx)
	}()

	if cfg.Env != config.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.CORSOrigin, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers := routes.Handlers{
		DB:        db,
		JWTSecret: cfg.JWTSecret,
		Auth:      &authapi.Handler{DB: db, JWTSecret: cfg.JWTSecret, Log: log},
		Courses:   &coursesapi.Handler{DB: db, Currency: cfg.Currency, Log: log},
		Users:     &usersapi.Handler{DB: db, Log: log},
		Billing: &billing.Handler{
			DB:        db,
			Initiator: initiator,
			Resolver:  resolver,
			Committer: committer,
			Log:       log,
		},
		Admin: &adminapi.Handler{DB: db, Reconciler: reconciler, Currency: cfg.Currency, Log: log},
	}
	if cfg.Google.Enabled() {
		handlers.Google = authapi.NewGoogle(db, cfg, log)
	}
	switch cfg.PaymentProvider {
	case config.ProviderMidtrans:
		handlers.Midtrans = &midtranswebhook.Handler{Settler: settler, ServerKey: cfg.Midtrans.ServerKey, Log: log}
	default:
		handlers.Stripe = &stripewebhooks.Handler{Settler: settler, WebhookSecret: cfg.Stripe.WebhookSecret, Log: log}
	}
	routes.RegisterRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http shutdown", slog.Any("error", err))
	}
	reconciler.Stop(ctx)
	// commits that outlived their webhook response
	if err := settler.Wait(ctx); err != nil {
		log.Error("pending commits not finished", slog.Any("error", err))
	}
	stopRelay()
	relayWG.Wait()
	if err := publisher.Close(); err != nil {
		log.Error("close publisher", slog.Any("error", err))
	}
	if err := database.Close(db); err != nil {
		log.Error("close database", slog.Any("error", err))
	}

	log.Info("stopped")
}

func newGateway(cfg config.Config) payments.Gateway {
	if cfg.PaymentProvider == config.ProviderMidtrans {
		return midtrans.NewGateway(cfg.Midtrans.ServerKey, cfg.Midtrans.Production)
	}
	return stripe.NewGateway(cfg.Stripe.SecretKey)
}

func newPublisher(cfg config.Config, log *slog.Logger) eventPublisher {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("no kafka brokers configured, outbox events are only logged")
		return kafka.LogPublisher{Log: log}
	}
	p, err := kafka.NewPublisher(cfg.Kafka, log)
	if err != nil {
		log.Error("failed to create kafka publisher", slog.Any("error", err))
		os.Exit(1)
	}
	return p
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case config.EnvLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
