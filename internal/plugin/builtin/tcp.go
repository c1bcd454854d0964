package builtin

import (
	"context"
	"net"
	"time"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/plugin"
)

func init() {
	plugin.RegisterFactory("builtin/tcp", func() plugin.Plugin { return &TCP{} })
}

// TCP probes whether a host:port accepts connections.
type TCP struct{}

func (t *TCP) Name() string { return "tcp" }

func (t *TCP) Schema() check.ParamSchema {
	return check.ParamSchema{Fields: []check.ParamField{
		{Name: "network", Type: check.ParamString, Default: "tcp"},
	}}
}

func (t *TCP) Run(ctx context.Context, target string, params map[string]any) (any, error) {
	network := stringParam(params, "network", "tcp")

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, network, target)
	if err != nil {
		return nil, check.Failuref("dial %s: %v", target, err)
	}
	defer conn.Close()

	return map[string]any{
		"connect_ms":  time.Since(start).Milliseconds(),
		"remote_addr": conn.RemoteAddr().String(),
	}, nil
}
