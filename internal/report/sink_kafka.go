package report

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pheanex/zmon-worker/internal/domain/check"
)

// KafkaSink publishes results as JSON messages keyed by check id, so all
// samples of one check land on one partition in dispatch order.
type KafkaSink struct {
	w     *kafka.Writer
	topic string
	log   *zap.Logger
}

func NewKafkaSink(log *zap.Logger, brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
		log:   log.With(zap.String("component", "sink.kafka"), zap.String("topic", topic)),
	}
}

func (s *KafkaSink) Emit(ctx context.Context, res check.Result) error {
	value, err := json.Marshal(res)
	if err != nil {
		s.log.Error("result marshal failed", zap.Error(err))
		return err
	}

	tr := otel.Tracer("sink.kafka")
	ctx, span := tr.Start(ctx, "kafka.produce "+s.topic, trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(s.topic),
			semconv.MessagingOperationPublish,
		),
	)
	defer span.End()

	err = s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(res.CheckID),
		Value: value,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.log.Debug("result published",
		zap.String("check_id", res.CheckID),
		zap.Int("value_len", len(value)),
	)
	return nil
}

func (s *KafkaSink) Close() error { return s.w.Close() }
