package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mailguard/internal/repository"
	"mailguard/internal/scheduler"
	"mailguard/pkg/config"
	"mailguard/pkg/db"
	"mailguard/pkg/logger"
	"mailguard/pkg/metrics"
	"mailguard/pkg/mq"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting action runner...")

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("MQ initialization failed", zap.Error(err))
	}
	defer publisher.Close()

	actionRepo := repository.NewActionRepository(dbConn, log)
	sched := scheduler.NewService(actionRepo, log)

	// Prometheus endpoint
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := ":" + cfg.Runner.MetricsPort
		log.Info("Metrics endpoint listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error("Metrics endpoint failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.Runner.PollInterval())
	defer ticker.Stop()

	log.Info("Runner started", zap.Duration("poll_interval", cfg.Runner.PollInterval()))

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down runner")
			return
		case <-ticker.C:
			dispatchDue(ctx, sched, publisher, log)
		}
	}
}

// eventPublisher is satisfied by *mq.Publisher.
type eventPublisher interface {
	Publish(routingKey string, payload any) error
}

// dispatchDue publishes every due action to the events exchange and marks
// it DONE. Dispatch is at-least-once: a crash or publish failure between
// listing and marking leaves the row SCHEDULED for the next poll, and
// consumers dedupe on action id.
func dispatchDue(ctx context.Context, sched *scheduler.Service, publisher eventPublisher, log *zap.Logger) {
	now := time.Now()

	actions, err := sched.ListReady(ctx, now)
	if err != nil {
		log.Error("Failed to list ready actions", zap.Error(err))
		return
	}
	metrics.ActionBacklogGauge.Set(float64(len(actions)))
	if len(actions) == 0 {
		return
	}

	log.Info("Dispatching due actions", zap.Int("count", len(actions)))

	for _, a := range actions {
		start := time.Now()
		event := mq.ActionExecuteEvent{
			ActionID:   a.ID,
			AccountID:  a.AccountID,
			ActionType: string(a.Type),
			ThreadID:   a.ThreadID,
			DueAt:      a.ScheduledAt,
		}

		if err := publisher.Publish("action.execute", event); err != nil {
			// Broker trouble is retryable: the row stays SCHEDULED and the
			// next poll picks it up again. FAILED is reserved for consumers
			// reporting a non-retryable execution error.
			log.Error("Failed to publish action.execute event, will retry",
				zap.Int64("action_id", a.ID),
				zap.Error(err),
			)
			metrics.RecordActionDispatch(string(a.Type), "retry", time.Since(start))
			continue
		}

		if err := sched.MarkExecuted(ctx, a.ID); err != nil {
			log.Error("Failed to mark action executed", zap.Int64("action_id", a.ID), zap.Error(err))
			continue
		}
		metrics.RecordActionDispatch(string(a.Type), "executed", time.Since(start))
	}
}
