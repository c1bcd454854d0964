package builtin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pheanex/zmon-worker/internal/domain/check"
)

func TestHTTPRunSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v, err := NewHTTP().Run(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	value := v.(map[string]any)
	assert.Equal(t, http.StatusOK, value["code"])
}

func TestHTTPRunServerErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v, err := NewHTTP().Run(context.Background(), srv.URL, nil)
	var failure *check.FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, http.StatusServiceUnavailable, v.(map[string]any)["code"])
}

func TestHTTPRunExpectStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := NewHTTP().Run(context.Background(), srv.URL, map[string]any{"expect_status": 418})
	assert.NoError(t, err)

	_, err = NewHTTP().Run(context.Background(), srv.URL, map[string]any{"expect_status": 200})
	var failure *check.FailureError
	assert.ErrorAs(t, err, &failure)
}

func TestHTTPRunUnreachableIsFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewHTTP().Run(ctx, "http://127.0.0.1:1", nil)
	var failure *check.FailureError
	assert.ErrorAs(t, err, &failure)
}

func TestHTTPRunBadTargetIsError(t *testing.T) {
	_, err := NewHTTP().Run(context.Background(), "", nil)
	require.Error(t, err)
	var failure *check.FailureError
	assert.False(t, errors.As(err, &failure), "malformed target is a plugin error, not a check failure")
}
