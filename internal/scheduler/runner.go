package scheduler

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	mDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_tasks_dispatched_total", Help: "Tasks handed to the execution pool",
	})
	mTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scheduler_tick_duration_seconds", Help: "Scheduler tick duration",
		Buckets: prometheus.DefBuckets,
	})
)

// Runner drives the scheduler at a fixed cadence. Single goroutine; the
// scheduler's entries are never touched from anywhere else.
type Runner struct {
	Log   *zap.Logger
	Sched *Scheduler
	Tick  time.Duration
}

func NewRunner(log *zap.Logger, s *Scheduler, tick time.Duration) *Runner {
	if tick <= 0 {
		tick = time.Second
	}
	return &Runner{Log: log, Sched: s, Tick: tick}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	tr := otel.Tracer("scheduler")
	_, span := tr.Start(ctx, "scheduler.tick")

	n := r.Sched.Tick(start)

	span.SetAttributes(attribute.Int("tick.dispatched", n))
	span.End()

	if n > 0 {
		mDispatched.Add(float64(n))
		r.Log.Debug("dispatched batch", zap.Int("count", n))
	}
	mTickDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
