package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"courtbot-service/internal/automation/availability"
	"courtbot-service/internal/automation/browser"
	"courtbot-service/internal/automation/browser/recovery"
	"courtbot-service/internal/automation/executor"
	"courtbot-service/internal/automation/forms"
	"courtbot-service/internal/config"
	"courtbot-service/internal/notify"
	"courtbot-service/internal/reservations/queue"
	"courtbot-service/internal/scheduler"
	"courtbot-service/internal/users"
	"courtbot-service/internal/venue"
	natsbroker "courtbot-service/pkg/broker/nats"
	"courtbot-service/pkg/log"
	"courtbot-service/pkg/server"
)

func main() {
	logger := log.New()
	defer logger.Sync()

	logger.Info("starting court booking scheduler")

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	v, err := venue.New(cfg.VENUE)
	if err != nil {
		logger.Fatal("failed to build venue model", zap.Error(err))
	}

	testDelay := time.Duration(0)
	if cfg.TESTMODE.Enabled {
		testDelay = time.Duration(cfg.TESTMODE.TriggerDelayMinutes) * time.Minute
		logger.Warn("test mode enabled",
			zap.Duration("trigger_delay", testDelay),
			zap.Bool("retain_failed", cfg.TESTMODE.RetainFailedReservations),
		)
	}

	reservationQueue, err := queue.Open(queue.Options{
		Path:         cfg.QUEUE.Path,
		Location:     v.Location(),
		WindowHours:  cfg.VENUE.BookingWindowHours,
		TestDelay:    testDelay,
		RetainFailed: cfg.TESTMODE.Enabled && cfg.TESTMODE.RetainFailedReservations,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to open reservation queue", zap.Error(err))
	}
	logger.Info("reservation queue opened", zap.String("path", cfg.QUEUE.Path))

	userStore := users.NewCachedStore(users.NewMemoryStore())
	logger.Info("user store initialized")

	pool := browser.NewPool(v, cfg.POOL, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		logger.Fatal("failed to start browser pool", zap.Error(err))
	}
	defer pool.Stop()

	recoveryOrchestrator := recovery.NewOrchestrator(pool, cfg.RECOVERY, logger)

	probe := venue.NewProbe(v, logger)
	gate := &healthGate{recovery: recoveryOrchestrator, probe: probe, logger: logger}

	broker, err := natsbroker.New(natsbroker.Config{
		URL:        cfg.NATS.URL,
		StreamName: cfg.NATS.Stream,
		Subjects:   []string{cfg.NATS.Subject},
		MaxAge:     24 * time.Hour,
	})
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer broker.Close()
	logger.Info("broker connected", zap.String("url", cfg.NATS.URL))

	notifier := notify.NewNotifier(broker, cfg.NATS.Subject, logger)
	recorder := notify.NewRecorder(reservationQueue, notifier,
		cfg.TESTMODE.Enabled && cfg.TESTMODE.RetainFailedReservations, logger)

	formService := forms.NewService(logger)
	bookingExecutor := executor.New(formService, v, cfg.SCHEDULER, logger)
	availabilityChecker := availability.NewChecker(pool, v, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := scheduler.NewMetrics(registry)

	sched := scheduler.New(scheduler.Dependencies{
		Queue:    reservationQueue,
		Users:    userStore,
		Pool:     pool,
		Gate:     gate,
		Executor: bookingExecutor,
		Recorder: recorder,
		Notifier: notifier,
		Venue:    v,
		Metrics:  metrics,
	}, cfg.SCHEDULER, logger)

	ops := server.New(cfg.APP.OpsPort, registry,
		func(reqCtx context.Context) (int, interface{}) {
			report := pool.HealthCheck(reqCtx)
			status := http.StatusOK
			if !report.Overall.Usable() {
				status = http.StatusServiceUnavailable
			}
			return status, map[string]interface{}{
				"pool":     report,
				"queue":    reservationQueue.StatusCounts(),
				"recovery": recoveryOrchestrator.Stats(),
			}
		},
		server.Route{
			Pattern: "/availability",
			Handler: func(reqCtx context.Context) interface{} {
				return availabilityChecker.CheckAllCourts(reqCtx)
			},
		},
	)
	ops.Run(logger)
	logger.Info("ops server listening", zap.String("port", cfg.APP.OpsPort))

	go sched.Run(ctx)
	go recycleLoop(ctx, pool)

	logger.Info("scheduler service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := ops.Stop(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", zap.Error(err))
	}

	// Give in-flight attempts a moment to observe cancellation.
	time.Sleep(2 * time.Second)
	logger.Info("scheduler service stopped")
}

// healthGate combines the cheap HTTP reachability probe with the
// recovery orchestrator's browser-level gate.
type healthGate struct {
	recovery *recovery.Orchestrator
	probe    *venue.Probe
	logger   *zap.Logger
}

func (g *healthGate) Gate(ctx context.Context, errorContext string) error {
	if err := g.probe.ReachableAny(ctx); err != nil {
		g.logger.Warn("venue unreachable over HTTP, skipping browser gate",
			zap.String("context", errorContext), zap.Error(err))
		return err
	}
	return g.recovery.Gate(ctx, errorContext)
}

// recycleLoop retires stale sessions between attempts
func recycleLoop(ctx context.Context, pool *browser.Pool) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pool.RecycleStale(ctx)
		}
	}
}
