package report

import (
	"context"

	"go.uber.org/zap"

	"github.com/pheanex/zmon-worker/internal/domain/check"
)

// LogSink writes results to the structured log. Useful for local runs
// and as a fallback when no collector is deployed.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.With(zap.String("component", "sink.log"))}
}

func (s *LogSink) Emit(_ context.Context, res check.Result) error {
	s.log.Info("check result",
		zap.String("check_id", res.CheckID),
		zap.String("type", res.Type),
		zap.String("status", string(res.Status)),
		zap.Time("ts_start", res.StartedAt),
		zap.Time("ts_end", res.FinishedAt),
		zap.Any("value", res.Value),
		zap.String("error", res.Error),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
