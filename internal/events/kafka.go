package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaEmitter implements Emitter using segmentio/kafka-go.
type KafkaEmitter struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaEmitter creates a producer that writes auth events to the given topic.
// Call Close when shutting down.
func NewKafkaEmitter(brokers []string, topic string, logger *zap.Logger) *KafkaEmitter {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaEmitter{writer: writer, logger: logger}
}

// Emit serializes the event as JSON and writes it with a short timeout so a
// slow broker never blocks an auth request. Failures are logged and dropped.
func (e *KafkaEmitter) Emit(ctx context.Context, ev Event) {
	if e == nil || e.writer == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: payload,
	}); err != nil {
		e.logger.Warn("auth event emit failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// Close closes the Kafka writer. Safe to call multiple times.
func (e *KafkaEmitter) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
