package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/plugin"
)

func init() {
	plugin.RegisterFactory("builtin/http", func() plugin.Plugin { return NewHTTP() })
}

// HTTP probes an HTTP(S) endpoint and reports status code and latency.
// A response in the 4xx/5xx range is a check failure, not a plugin error.
type HTTP struct {
	client *http.Client
}

func NewHTTP() *HTTP {
	return &HTTP{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Schema() check.ParamSchema {
	return check.ParamSchema{Fields: []check.ParamField{
		{Name: "method", Type: check.ParamString, Default: http.MethodGet},
		{Name: "user_agent", Type: check.ParamString, Default: "zmon-worker"},
		{Name: "expect_status", Type: check.ParamInt},
		{Name: "body_limit", Type: check.ParamInt, Default: 1 << 20},
	}}
}

func (h *HTTP) Run(ctx context.Context, target string, params map[string]any) (any, error) {
	u, err := normalizeURL(target)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	method := strings.ToUpper(stringParam(params, "method", http.MethodGet))
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", stringParam(params, "user_agent", "zmon-worker"))

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, check.Failuref("http request failed: %v", err)
	}
	defer resp.Body.Close()

	limit := int64(intParam(params, "body_limit", 1<<20))
	n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, limit))

	value := map[string]any{
		"code":       resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
		"body_bytes": n,
	}

	if expect := intParam(params, "expect_status", 0); expect != 0 {
		if resp.StatusCode != expect {
			return value, check.Failuref("status %d, expected %d", resp.StatusCode, expect)
		}
		return value, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return value, check.Failuref("status %d", resp.StatusCode)
	}
	return value, nil
}

func normalizeURL(target string) (string, error) {
	t := strings.TrimSpace(target)
	if t == "" {
		return "", fmt.Errorf("empty target")
	}
	if !strings.Contains(t, "://") {
		t = "http://" + t
	}
	u, err := url.Parse(t)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", target)
	}
	return u.String(), nil
}
