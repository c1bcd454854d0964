package builtin

import (
	"context"
	"time"

	probing "github.com/go-ping/ping"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/plugin"
)

func init() {
	plugin.RegisterFactory("builtin/ping", func() plugin.Plugin { return &Ping{} })
}

// Ping sends ICMP echo requests and reports packet loss and round-trip
// times. Runs unprivileged (UDP) unless the privileged param is set.
type Ping struct{}

func (p *Ping) Name() string { return "ping" }

func (p *Ping) Schema() check.ParamSchema {
	return check.ParamSchema{Fields: []check.ParamField{
		{Name: "count", Type: check.ParamInt, Default: 3},
		{Name: "privileged", Type: check.ParamBool, Default: false},
	}}
}

func (p *Ping) Run(ctx context.Context, target string, params map[string]any) (any, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return nil, check.Failuref("resolve %s: %v", target, err)
	}
	pinger.Count = intParam(params, "count", 3)
	if priv, ok := params["privileged"].(bool); ok {
		pinger.SetPrivileged(priv)
	}
	if dl, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(dl)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		return nil, check.Failuref("ping %s: %v", target, err)
	}

	stats := pinger.Statistics()
	value := map[string]any{
		"sent":        stats.PacketsSent,
		"received":    stats.PacketsRecv,
		"loss_pct":    stats.PacketLoss,
		"rtt_avg_ms":  float64(stats.AvgRtt) / float64(time.Millisecond),
		"rtt_min_ms":  float64(stats.MinRtt) / float64(time.Millisecond),
		"rtt_max_ms":  float64(stats.MaxRtt) / float64(time.Millisecond),
		"resolved_ip": stats.IPAddr.String(),
	}
	if stats.PacketsRecv == 0 {
		return value, check.Failuref("no echo replies from %s", target)
	}
	return value, nil
}
