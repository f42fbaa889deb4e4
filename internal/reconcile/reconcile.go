// Package reconcile периодически восстанавливает заказы, оставшиеся на паузе
// после частично выполненного закрытия обращения.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/mmeshcher/printpoints/internal/metrics"
)

// Reconciler закрывает открытые оповещения о несогласованности.
type Reconciler interface {
	ReconcileAlerts(ctx context.Context) (int, error)
}

// Job запускает сверку с фиксированным интервалом.
type Job struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger
	scheduler  gocron.Scheduler
	cancel     context.CancelFunc
}

// New создаёт задачу сверки.
func New(r Reconciler, interval time.Duration, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{reconciler: r, interval: interval, logger: logger}
}

// RunOnce выполняет один проход сверки.
func (j *Job) RunOnce(ctx context.Context) {
	n, err := j.reconciler.ReconcileAlerts(ctx)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("reconcile").Inc()
		j.logger.Error("reconcile alerts", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("alerts reconciled", zap.Int("count", n))
	}
}

// Start запускает планировщик; задача не выполняется параллельно сама с собой.
func (j *Job) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	_, err = s.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() { j.RunOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("reconcile-alerts"),
	)
	if err != nil {
		cancel()
		_ = s.Shutdown()
		return fmt.Errorf("schedule reconcile job: %w", err)
	}
	j.scheduler = s
	j.cancel = cancel
	s.Start()
	j.logger.Info("reconcile job started", zap.Duration("interval", j.interval))
	return nil
}

// Stop останавливает планировщик и дожидается выполняющейся задачи.
func (j *Job) Stop() error {
	if j.scheduler == nil {
		return nil
	}
	j.cancel()
	if err := j.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	j.scheduler = nil
	return nil
}
