package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/plugin"
)

type funcPlugin struct {
	name string
	fn   func(ctx context.Context, target string, params map[string]any) (any, error)
}

func (f *funcPlugin) Name() string              { return f.name }
func (f *funcPlugin) Schema() check.ParamSchema { return check.ParamSchema{} }
func (f *funcPlugin) Run(ctx context.Context, target string, params map[string]any) (any, error) {
	return f.fn(ctx, target, params)
}

var _ plugin.Plugin = (*funcPlugin)(nil)

func testTask(id string, timeout time.Duration, fn func(ctx context.Context, target string, params map[string]any) (any, error)) Task {
	return Task{
		Def: check.Definition{
			ID:       id,
			Type:     "test",
			Target:   "localhost",
			Interval: time.Minute,
			Timeout:  timeout,
			Enabled:  true,
		},
		Plugin: &funcPlugin{name: "test", fn: fn},
		Due:    time.Now(),
	}
}

func startPool(t *testing.T, cfg Config) (*Pool, context.CancelFunc) {
	t.Helper()
	p := New(zaptest.NewLogger(t), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(cancel)
	return p, cancel
}

func waitResult(t *testing.T, p *Pool) check.Result {
	t.Helper()
	select {
	case res := <-p.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no result produced")
		return check.Result{}
	}
}

func TestExecuteSuccess(t *testing.T) {
	p, _ := startPool(t, Config{Workers: 2})
	p.Submit(testTask("ok", time.Second, func(context.Context, string, map[string]any) (any, error) {
		return map[string]any{"code": 200}, nil
	}))

	res := waitResult(t, p)
	assert.Equal(t, "ok", res.CheckID)
	assert.Equal(t, check.StatusSuccess, res.Status)
	assert.NotNil(t, res.Value)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestFailureErrorMapsToFailureStatus(t *testing.T) {
	p, _ := startPool(t, Config{Workers: 1})
	p.Submit(testTask("down", time.Second, func(context.Context, string, map[string]any) (any, error) {
		return nil, check.Failuref("status %d", 503)
	}))

	res := waitResult(t, p)
	assert.Equal(t, check.StatusFailure, res.Status)
	assert.Equal(t, "status 503", res.Error)
}

func TestPluginErrorIsContained(t *testing.T) {
	p, _ := startPool(t, Config{Workers: 1})
	p.Submit(testTask("broken", time.Second, func(context.Context, string, map[string]any) (any, error) {
		return nil, errors.New("driver exploded")
	}))
	res := waitResult(t, p)
	assert.Equal(t, check.StatusError, res.Status)
	assert.Equal(t, "driver exploded", res.Error)

	// sibling task on the same worker still runs
	p.Submit(testTask("after", time.Second, func(context.Context, string, map[string]any) (any, error) {
		return 1, nil
	}))
	res = waitResult(t, p)
	assert.Equal(t, "after", res.CheckID)
	assert.Equal(t, check.StatusSuccess, res.Status)
}

func TestPluginPanicIsContained(t *testing.T) {
	p, _ := startPool(t, Config{Workers: 1})
	p.Submit(testTask("panicky", time.Second, func(context.Context, string, map[string]any) (any, error) {
		panic("boom")
	}))
	res := waitResult(t, p)
	assert.Equal(t, check.StatusError, res.Status)
	assert.Contains(t, res.Error, "boom")

	p.Submit(testTask("survivor", time.Second, func(context.Context, string, map[string]any) (any, error) {
		return 1, nil
	}))
	assert.Equal(t, check.StatusSuccess, waitResult(t, p).Status)
}

func TestCooperativeTimeout(t *testing.T) {
	p, _ := startPool(t, Config{Workers: 1})
	p.Submit(testTask("slow", 50*time.Millisecond, func(ctx context.Context, _ string, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	res := waitResult(t, p)
	assert.Equal(t, check.StatusTimeout, res.Status)
}

func TestNonCooperativeTimeoutDetaches(t *testing.T) {
	release := make(chan struct{})
	p, _ := startPool(t, Config{Workers: 1, MaxDetached: 4})

	start := time.Now()
	p.Submit(testTask("hung", 50*time.Millisecond, func(context.Context, string, map[string]any) (any, error) {
		<-release // ignores ctx entirely
		return nil, nil
	}))

	res := waitResult(t, p)
	assert.Equal(t, check.StatusTimeout, res.Status)
	assert.Less(t, time.Since(start), 2*time.Second, "timeout must fire near the deadline, not when the plugin returns")
	assert.EqualValues(t, 1, p.detached.Load())

	close(release)
	require.Eventually(t, func() bool { return p.detached.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDetachedCapRejectsNewWork(t *testing.T) {
	release := make(chan struct{})
	p, _ := startPool(t, Config{Workers: 4, MaxDetached: 2})

	for i := 0; i < 2; i++ {
		p.Submit(testTask("hung", 30*time.Millisecond, func(context.Context, string, map[string]any) (any, error) {
			<-release
			return nil, nil
		}))
	}
	assert.Equal(t, check.StatusTimeout, waitResult(t, p).Status)
	assert.Equal(t, check.StatusTimeout, waitResult(t, p).Status)

	p.Submit(testTask("rejected", time.Second, func(context.Context, string, map[string]any) (any, error) {
		return 1, nil
	}))
	res := waitResult(t, p)
	assert.Equal(t, check.StatusError, res.Status)
	assert.Equal(t, ErrDetachedLimit.Error(), res.Error)

	close(release)
}

func TestSaturationRejectsOverflowAndDrainsInOrder(t *testing.T) {
	block := make(chan struct{})
	var running atomic.Bool
	p, _ := startPool(t, Config{Workers: 1, MaxQueue: 2})

	p.Submit(testTask("busy", 5*time.Second, func(context.Context, string, map[string]any) (any, error) {
		running.Store(true)
		<-block
		return "busy", nil
	}))
	require.Eventually(t, func() bool { return running.Load() }, 2*time.Second, time.Millisecond)

	p.Submit(testTask("q1", time.Second, func(context.Context, string, map[string]any) (any, error) { return "q1", nil }))
	p.Submit(testTask("q2", time.Second, func(context.Context, string, map[string]any) (any, error) { return "q2", nil }))

	// queue is full now: workers(1 busy) + queue(2)
	p.Submit(testTask("overflow", time.Second, func(context.Context, string, map[string]any) (any, error) { return nil, nil }))
	res := waitResult(t, p)
	assert.Equal(t, "overflow", res.CheckID)
	assert.Equal(t, check.StatusError, res.Status)
	assert.Equal(t, ErrSaturated.Error(), res.Error)

	close(block)
	assert.Equal(t, "busy", waitResult(t, p).CheckID)
	assert.Equal(t, "q1", waitResult(t, p).CheckID)
	assert.Equal(t, "q2", waitResult(t, p).CheckID)
}

func TestOnDoneFiresBeforePublish(t *testing.T) {
	p, _ := startPool(t, Config{Workers: 1})
	seen := make(chan check.Result, 1)
	task := testTask("cb", time.Second, func(context.Context, string, map[string]any) (any, error) {
		return 1, nil
	})
	task.OnDone = func(res check.Result) { seen <- res }
	p.Submit(task)

	res := waitResult(t, p)
	select {
	case cb := <-seen:
		assert.Equal(t, res.CheckID, cb.CheckID)
	default:
		t.Fatal("OnDone not invoked before result publication")
	}
}
