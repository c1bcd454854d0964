package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/plugin"
)

var (
	// ErrSaturated rejects a dispatch when the queue is at capacity.
	ErrSaturated = errors.New("pool saturated")
	// ErrDetachedLimit rejects a dispatch while too many timed-out plugin
	// calls are still in flight.
	ErrDetachedLimit = errors.New("detached task limit reached")
)

// Task is one dispatched unit of work. Ownership transfers from the
// scheduler to the pool at Submit; the pool produces exactly one Result
// for it, then the task is gone.
type Task struct {
	Def    check.Definition
	Plugin plugin.Plugin
	Due    time.Time

	// OnDone, if set, is called with the produced result before it is
	// published. The scheduler uses it to close the dispatch window.
	OnDone func(check.Result)
}

type Config struct {
	Workers     int
	MaxQueue    int
	MaxDetached int
}

var (
	mTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_total", Help: "Executed tasks by result status",
	}, []string{"status"})
	mRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_rejected_total", Help: "Dispatches rejected before execution",
	}, []string{"reason"})
	mRunDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "worker_task_duration_seconds", Help: "Plugin run duration",
		Buckets: prometheus.DefBuckets,
	})
	mQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_queue_depth", Help: "Tasks waiting for a worker",
	})
	mDetached = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_detached_tasks", Help: "Timed-out plugin calls still in flight",
	})
)

// Pool runs tasks on a bounded set of workers with per-task deadline
// enforcement. A misbehaving plugin never crashes the pool or affects
// sibling tasks.
type Pool struct {
	log     *zap.Logger
	cfg     Config
	queue   chan Task
	results chan check.Result

	detached atomic.Int64
	wg       sync.WaitGroup
	stop     sync.Once
}

func New(log *zap.Logger, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 256
	}
	if cfg.MaxDetached <= 0 {
		cfg.MaxDetached = 64
	}
	return &Pool{
		log:     log.With(zap.String("component", "pool")),
		cfg:     cfg,
		queue:   make(chan Task, cfg.MaxQueue),
		results: make(chan check.Result, cfg.MaxQueue),
	}
}

// Results streams every produced result, in completion order across
// checks. Closed after Shutdown once all workers drain.
func (p *Pool) Results() <-chan check.Result { return p.results }

// Run starts the worker set and blocks until ctx is canceled and all
// running tasks finish. Tasks still queued at shutdown are dropped.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	<-ctx.Done()
	p.wg.Wait()
	p.stop.Do(func() { close(p.results) })
}

// Submit enqueues a task, oldest-due first. A full queue rejects the task
// with status error rather than blocking the scheduler; the detached-task
// cap rejects the same way to bound leaked goroutines.
func (p *Pool) Submit(task Task) {
	if p.detached.Load() >= int64(p.cfg.MaxDetached) {
		mRejected.WithLabelValues("detached_limit").Inc()
		p.publish(task, p.rejectResult(task, ErrDetachedLimit))
		return
	}
	select {
	case p.queue <- task:
		mQueue.Set(float64(len(p.queue)))
	default:
		mRejected.WithLabelValues("saturated").Inc()
		p.log.Warn("queue full, task rejected", zap.String("check_id", task.Def.ID))
		p.publish(task, p.rejectResult(task, ErrSaturated))
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.queue:
			mQueue.Set(float64(len(p.queue)))
			p.publish(task, p.execute(ctx, id, task))
		}
	}
}

type outcome struct {
	value any
	err   error
}

// execute runs the plugin under the task's deadline. The call itself runs
// in a child goroutine so a non-cooperative plugin can be abandoned: the
// deadline fires, a timeout result is produced, and the straggler's
// eventual return is discarded.
func (p *Pool) execute(ctx context.Context, workerID int, task Task) check.Result {
	runCtx, cancel := context.WithTimeout(ctx, task.Def.Timeout)

	res := check.Result{
		CheckID:   task.Def.ID,
		Type:      task.Def.Type,
		StartedAt: time.Now().UTC(),
		Worker:    workerID,
	}

	out := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- outcome{err: fmt.Errorf("plugin panic: %v", r)}
			}
		}()
		v, err := task.Plugin.Run(runCtx, task.Def.Target, task.Def.Params)
		out <- outcome{value: v, err: err}
	}()

	select {
	case o := <-out:
		cancel()
		res.FinishedAt = time.Now().UTC()
		res.Value = o.value
		switch {
		case o.err == nil:
			res.Status = check.StatusSuccess
		case errors.Is(o.err, context.DeadlineExceeded):
			res.Status = check.StatusTimeout
			res.Error = o.err.Error()
		default:
			var failure *check.FailureError
			if errors.As(o.err, &failure) {
				res.Status = check.StatusFailure
			} else {
				res.Status = check.StatusError
			}
			res.Error = o.err.Error()
		}
	case <-runCtx.Done():
		res.FinishedAt = time.Now().UTC()
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			res.Status = check.StatusTimeout
			res.Error = fmt.Sprintf("deadline exceeded after %s", task.Def.Timeout)
		} else {
			res.Status = check.StatusError
			res.Error = "worker shutting down"
		}
		p.detach(task, out, cancel)
	}

	mTasks.WithLabelValues(string(res.Status)).Inc()
	mRunDur.Observe(res.Duration().Seconds())
	return res
}

// detach hands a timed-out call over to a reaper goroutine that waits for
// the plugin to return and discards its result. The detached counter caps
// how many such stragglers may accumulate.
func (p *Pool) detach(task Task, out <-chan outcome, cancel context.CancelFunc) {
	n := p.detached.Add(1)
	mDetached.Set(float64(n))
	p.log.Warn("task detached after deadline",
		zap.String("check_id", task.Def.ID),
		zap.Duration("timeout", task.Def.Timeout),
		zap.Int64("detached", n),
	)
	go func() {
		<-out
		cancel()
		mDetached.Set(float64(p.detached.Add(-1)))
	}()
}

func (p *Pool) rejectResult(task Task, reason error) check.Result {
	now := time.Now().UTC()
	return check.Result{
		CheckID:    task.Def.ID,
		Type:       task.Def.Type,
		StartedAt:  now,
		FinishedAt: now,
		Status:     check.StatusError,
		Error:      reason.Error(),
		Worker:     -1,
	}
}

// publish closes the task's dispatch window first so the scheduler sees
// the completion before the result is handed downstream.
func (p *Pool) publish(task Task, res check.Result) {
	if task.OnDone != nil {
		task.OnDone(res)
	}
	select {
	case p.results <- res:
	default:
		// Reporter fell behind; a monitoring sample is droppable, a
		// blocked worker is not.
		mRejected.WithLabelValues("results_backpressure").Inc()
		p.log.Warn("results channel full, result dropped", zap.String("check_id", res.CheckID))
	}
}
