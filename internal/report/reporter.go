package report

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/obs"
	"github.com/pheanex/zmon-worker/internal/obs/retry"
)

// Sink is the engine's outward boundary: one normalized result record in,
// delivered to whatever downstream consumer the deployment wires up.
type Sink interface {
	Emit(ctx context.Context, res check.Result) error
	Close() error
}

var (
	mEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporter_results_emitted_total", Help: "Results delivered to the sink",
	})
	mDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporter_results_dropped_total", Help: "Results dropped after retry exhaustion",
	})
)

// Reporter fans results from the pool into the sink. Delivery is
// best-effort: emission failures are retried with bounded backoff, then
// the sample is dropped. Losing one sample is tolerable; wedging the
// pipeline is not.
type Reporter struct {
	log    *zap.Logger
	sink   Sink
	policy retry.Policy
}

func New(log *zap.Logger, sink Sink, policy retry.Policy) *Reporter {
	return &Reporter{
		log:    log.With(zap.String("component", "reporter")),
		sink:   sink,
		policy: policy,
	}
}

// Run drains the results channel until it closes, then closes the sink.
func (r *Reporter) Run(ctx context.Context, results <-chan check.Result) error {
	defer func() {
		if err := r.sink.Close(); err != nil {
			r.log.Warn("sink close", zap.Error(err))
		}
	}()

	for res := range results {
		r.emit(ctx, res)
	}
	return ctx.Err()
}

func (r *Reporter) emit(ctx context.Context, res check.Result) {
	err := retry.Do(ctx, func() error {
		return r.sink.Emit(ctx, res)
	}, r.policy)
	if err != nil {
		mDropped.Inc()
		obs.WithTrace(ctx, r.log).Warn("result dropped",
			zap.String("check_id", res.CheckID),
			zap.String("status", string(res.Status)),
			zap.Error(err),
		)
		return
	}
	mEmitted.Inc()
}
