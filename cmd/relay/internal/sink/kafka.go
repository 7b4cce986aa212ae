package sink

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/pkg/models"
)

// KafkaWriter abstracts the producer for deterministic testing.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink streams every relayed tick to a topic for analytics consumers.
// Messages are keyed by symbol so partitioning preserves per-symbol order.
type KafkaSink struct {
	queue
	writer KafkaWriter
}

func NewKafkaSink(writer KafkaWriter, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		queue:  newQueue("kafka", 1024, logger),
		writer: writer,
	}
}

// NewKafkaWriter builds the production writer for the given brokers/topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

// Run drains the queue until ctx is cancelled.
func (s *KafkaSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.ch:
			s.write(ctx, t)
		}
	}
}

func (s *KafkaSink) write(ctx context.Context, t models.Trade) {
	payload, err := json.Marshal(t)
	if err != nil {
		s.logger.Error("marshal trade for kafka", zap.Error(err))
		return
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.Symbol),
		Value: payload,
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Error("kafka write error",
			zap.Error(err),
			zap.String("symbol", t.Symbol),
		)
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
