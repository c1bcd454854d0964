package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/obs/retry"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	emitted  []check.Result
	closed   bool
}

func (s *flakySink) Emit(_ context.Context, res check.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.emitted = append(s.emitted, res)
	return nil
}

func (s *flakySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *flakySink) results() []check.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]check.Result(nil), s.emitted...)
}

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		Name:     "test",
		Attempts: attempts,
		Backoff:  retry.ExpoJitter{Base: time.Millisecond, Max: 5 * time.Millisecond},
	}
}

func runReporter(t *testing.T, sink Sink, policy retry.Policy, results ...check.Result) {
	t.Helper()
	ch := make(chan check.Result, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)
	r := New(zaptest.NewLogger(t), sink, policy)
	_ = r.Run(context.Background(), ch)
}

func TestEmitRetriesUntilSinkRecovers(t *testing.T) {
	sink := &flakySink{failures: 2}
	runReporter(t, sink, fastPolicy(5), check.Result{CheckID: "c1", Status: check.StatusSuccess})

	got := sink.results()
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].CheckID)
	assert.True(t, sink.closed)
}

func TestEmitDropsAfterExhaustionAndKeepsGoing(t *testing.T) {
	sink := &flakySink{failures: 1000}
	runReporter(t, sink, fastPolicy(3),
		check.Result{CheckID: "lost", Status: check.StatusSuccess},
	)
	assert.Empty(t, sink.results())

	// a fresh reporter with a healthy sink still works; the pipeline is
	// not wedged by a bad sample
	sink2 := &flakySink{}
	runReporter(t, sink2, fastPolicy(3), check.Result{CheckID: "kept"})
	require.Len(t, sink2.results(), 1)
}

func TestHTTPSinkPostsJSON(t *testing.T) {
	var mu sync.Mutex
	var received []check.Result
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var res check.Result
		require.NoError(t, json.NewDecoder(r.Body).Decode(&res))
		mu.Lock()
		received = append(received, res)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, time.Second)
	err := sink.Emit(context.Background(), check.Result{
		CheckID: "h1",
		Type:    "http",
		Status:  check.StatusFailure,
		Error:   "status 503",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "h1", received[0].CheckID)
	assert.Equal(t, check.StatusFailure, received[0].Status)
	assert.Equal(t, "status 503", received[0].Error)
}

func TestHTTPSinkErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, time.Second)
	err := sink.Emit(context.Background(), check.Result{CheckID: "h2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestLogSinkNeverFails(t *testing.T) {
	sink := NewLogSink(zaptest.NewLogger(t))
	assert.NoError(t, sink.Emit(context.Background(), check.Result{CheckID: "l1"}))
	assert.NoError(t, sink.Close())
}
