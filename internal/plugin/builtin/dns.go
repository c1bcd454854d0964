package builtin

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/plugin"
)

func init() {
	plugin.RegisterFactory("builtin/dns", func() plugin.Plugin { return NewDNS() })
}

// DNS resolves a record for the target name. An empty answer is a check
// failure; resolver errors are failures too since the target is the thing
// being monitored.
type DNS struct {
	resolver *net.Resolver
}

func NewDNS() *DNS {
	return &DNS{resolver: net.DefaultResolver}
}

func (d *DNS) Name() string { return "dns" }

func (d *DNS) Schema() check.ParamSchema {
	return check.ParamSchema{Fields: []check.ParamField{
		{Name: "record", Type: check.ParamString, Default: "A"},
	}}
}

func (d *DNS) Run(ctx context.Context, target string, params map[string]any) (any, error) {
	record := strings.ToUpper(stringParam(params, "record", "A"))

	start := time.Now()
	var records []string
	var err error

	switch record {
	case "A", "AAAA":
		var addrs []net.IP
		addrs, err = d.resolver.LookupIP(ctx, lookupNetwork(record), target)
		for _, a := range addrs {
			records = append(records, a.String())
		}
	case "CNAME":
		var cname string
		cname, err = d.resolver.LookupCNAME(ctx, target)
		if cname != "" {
			records = append(records, cname)
		}
	case "MX":
		var mxs []*net.MX
		mxs, err = d.resolver.LookupMX(ctx, target)
		for _, mx := range mxs {
			records = append(records, mx.Host)
		}
	case "NS":
		var nss []*net.NS
		nss, err = d.resolver.LookupNS(ctx, target)
		for _, ns := range nss {
			records = append(records, ns.Host)
		}
	case "TXT":
		records, err = d.resolver.LookupTXT(ctx, target)
	default:
		return nil, check.Failuref("unsupported record type %q", record)
	}

	if err != nil {
		return nil, check.Failuref("lookup %s %s: %v", record, target, err)
	}
	if len(records) == 0 {
		return nil, check.Failuref("no %s records for %s", record, target)
	}

	return map[string]any{
		"records":    records,
		"latency_ms": time.Since(start).Milliseconds(),
	}, nil
}

func lookupNetwork(record string) string {
	if record == "AAAA" {
		return "ip6"
	}
	return "ip4"
}
