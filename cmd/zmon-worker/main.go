package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pheanex/zmon-worker/internal/config"
	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/obs"
	"github.com/pheanex/zmon-worker/internal/obs/retry"
	"github.com/pheanex/zmon-worker/internal/plugin"
	_ "github.com/pheanex/zmon-worker/internal/plugin/builtin"
	"github.com/pheanex/zmon-worker/internal/pool"
	"github.com/pheanex/zmon-worker/internal/report"
	"github.com/pheanex/zmon-worker/internal/scheduler"
)

var version = "dev"

func main() {
	var configPath string
	flag.StringVar(&configPath, "c", "/app/config.yaml", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(version))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("starting worker",
		zap.Strings("plugin_dirs", cfg.Plugins.Dirs),
		zap.Int("checks", len(cfg.Checks)),
		zap.String("sink", cfg.Sink.Kind),
		zap.String("metrics_addr", cfg.Sched.MetricsAddr),
	)

	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}

	// Plugin load and definition validation are fatal: the process must
	// not begin scheduling with an invalid configuration.
	registry := plugin.NewRegistry(l)
	if err := registry.Load(cfg.Plugins.Dirs); err != nil {
		l.Fatal("plugin load", zap.Error(err))
	}

	items, err := resolveChecks(registry, cfg.Checks)
	if err != nil {
		l.Fatal("check definitions", zap.Error(err))
	}

	sink, err := buildSink(l, cfg.Sink)
	if err != nil {
		l.Fatal("sink init", zap.Error(err))
	}

	execPool := pool.New(l, pool.Config{
		Workers:     cfg.Pool.Workers,
		MaxQueue:    cfg.Pool.MaxQueue,
		MaxDetached: cfg.Pool.MaxDetached,
	})
	reporter := report.New(l, sink,
		retry.SinkPolicy(l, cfg.Sink.Retry.Attempts, cfg.Sink.Retry.Base, cfg.Sink.Retry.Max))
	sched := scheduler.New(l, execPool, items)
	runner := scheduler.NewRunner(l, sched, cfg.Sched.Tick)

	ms := obs.BootstrapMetricsServer(cfg.Sched.MetricsAddr, func(context.Context) error {
		return nil
	}, l)

	poolDone := make(chan struct{})
	go func() {
		execPool.Run(ctx)
		close(poolDone)
	}()

	reporterDone := make(chan struct{})
	go func() {
		_ = reporter.Run(ctx, execPool.Results())
		close(reporterDone)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("worker started", zap.Int("scheduled_checks", sched.Len()))

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	stop()
	<-poolDone
	<-reporterDone

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	_ = otelCloser.Shutdown(shCtx)
	l.Info("bye")
}

// resolveChecks binds every definition to its plugin and validates it
// against the plugin's parameter schema, fail-fast.
func resolveChecks(registry *plugin.Registry, defs []check.Definition) ([]scheduler.Item, error) {
	items := make([]scheduler.Item, 0, len(defs))
	for _, def := range defs {
		desc, err := registry.Resolve(def.Type)
		if err != nil {
			return nil, err
		}
		if err := check.Validate(def, desc.Schema); err != nil {
			return nil, err
		}
		items = append(items, scheduler.Item{Def: def, Impl: desc.Impl})
	}
	return items, nil
}

func buildSink(l *zap.Logger, cfg config.SinkCfg) (report.Sink, error) {
	switch cfg.Kind {
	case "kafka":
		return report.NewKafkaSink(l, cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	case "http":
		return report.NewHTTPSink(cfg.HTTP.URL, cfg.HTTP.Timeout), nil
	case "log", "":
		return report.NewLogSink(l), nil
	default:
		return nil, errors.New("unknown sink kind: " + cfg.Kind)
	}
}
