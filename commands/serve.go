package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"coursebook/config"
	"coursebook/cron"
	"coursebook/database"
	"coursebook/handlers"
	"coursebook/metrics"
	"coursebook/middleware"
	"coursebook/routes"
	"coursebook/services/booking"
	"coursebook/services/gateway"
	"coursebook/services/payment"
	"coursebook/services/reminder"
	"coursebook/services/tasks"
	"coursebook/services/turnstile"
	"coursebook/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	serveNoWorker bool
	serveNoCron   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, confirmation worker and reminder cron",
	Long: `Run the HTTP API together with the asynq confirmation worker and the
reminder cron. SIGINT or SIGTERM shuts everything down gracefully.

Examples:
  coursebook serve
  coursebook serve --no-worker --no-cron`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "do not run the confirmation worker in this process")
	serveCmd.Flags().BoolVar(&serveNoCron, "no-cron", false, "do not run the reminder cron in this process")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	mailer, err := newMailer(logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return err
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisQueueDB}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	queue := tasks.NewConfirmationQueue(asynqClient, logger)

	stripeGateway := gateway.NewStripeGateway(cfg.StripeKey, cfg.StripeWebhookSecret, nil, logger)
	reconciler := payment.NewReconciler(store, stripeGateway, queue, rec, logger)
	bookingSvc := booking.NewDefaultBookingService(store, stripeGateway, mailer, rec, booking.Policy{
		HoldWindow:     cfg.CapacityHoldWindow,
		Currency:       cfg.PaymentCurrency,
		OperatorEmails: cfg.NotificationEmails(),
	}, logger)

	checks := map[string]utils.HealthCheck{"database": databaseCheck(cfg.DatabaseDriver)}
	var checkoutLimiter gin.HandlerFunc
	if cache, err := utils.InitCache(ctx); err != nil {
		logger.Warn("Checkout rate limiting disabled", zap.Error(err))
	} else {
		defer cache.Close()
		checkoutLimiter = middleware.CheckoutRateLimit(cache, cfg.CheckoutRateLimit, cfg.CheckoutRateWindow, logger)
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx).Err() }
	}

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin, logger))

	bh := handlers.NewBookingHandler(bookingSvc)
	bh.Verifier = turnstile.NewVerifier(cfg.TurnstileSecretKey, logger)
	wh := handlers.NewWebhookHandler(reconciler)
	ah := handlers.NewAdminHandler(store)
	routes.RegisterRoutes(router, &handlers.HandlerBundle{
		CheckoutHandler:      bh.CheckoutHandler,
		FinalPaymentHandler:  bh.FinalPaymentHandler,
		AvailabilityHandler:  bh.AvailabilityHandler,
		ContactHandler:       bh.ContactHandler,
		StripeWebhookHandler: wh.StripeWebhookHandler,
		ListBookingsHandler:  ah.ListBookingsHandler,
		LedgerHandler:        ah.LedgerHandler,
		CheckoutLimiter:      checkoutLimiter,
		AdminAuth:            middleware.AdminAuthMiddleware(cfg.AdminAPIToken),
		HealthHandler:        handlers.HealthHandler,
		MetricsHandler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	var reminders *cron.ReminderCron
	if !serveNoCron {
		scheduler := reminder.NewScheduler(store, mailer, reconciler, rec, reminderConfig(cfg), logger)
		if reminders, err = cron.NewReminderCron(cfg.ReminderSchedule, scheduler, logger); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Server is shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	utils.StartHealthMonitor(ctx, checks, 30*time.Second)

	if !serveNoWorker {
		confirmations := tasks.NewConfirmationHandler(store, mailer, cfg.NotificationEmails(), logger)
		worker := cron.NewWorker(redisOpt, confirmations, logger)
		g.Go(func() error { return worker.Run(ctx) })
	}
	if reminders != nil {
		g.Go(func() error { return reminders.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func reminderConfig(cfg config.Config) reminder.Config {
	return reminder.Config{
		PaymentDueEnabled:       cfg.PaymentReminderEnabled,
		PaymentLeadDays:         cfg.PaymentReminderLeadDays,
		CourseDetailsEnabled:    cfg.CourseDetailsEnabled,
		CourseDetailsNoticeDays: cfg.CourseDetailsNoticeDays,
		SessionEnabled:          cfg.SessionReminderEnabled,
		SessionDaysBefore:       cfg.SessionReminderDaysBefore,
		SessionMode:             cfg.SessionReminderMode,
		TestMode:                cfg.ReminderTestMode,
		TestRecipient:           cfg.ReminderTestEmail,
		PendingExpiry:           cfg.PendingExpiry,
		SiteURL:                 cfg.SiteURL,
	}
}

func databaseCheck(driver string) utils.HealthCheck {
	return func(ctx context.Context) error {
		if driver == "mongo" {
			if database.MongoClient == nil {
				return errors.New("mongo not connected")
			}
			return database.MongoClient.Ping(ctx, nil)
		}
		if database.PgPool == nil {
			return errors.New("postgres not connected")
		}
		return database.PgPool.Ping(ctx)
	}
}
