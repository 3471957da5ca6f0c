package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/parcel-sensor-service/internal/config"
	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes persisted sensor logs to a Kafka topic.
// It implements pipeline.LogPublisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSinkTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishSensorLog writes one message keyed by tracking code, so every log of
// a shipment lands on the same partition.
func (w *Writer) PublishSensorLog(ctx context.Context, log domain.PersistedSensorLog) error {
	msg, err := serializeToMessage(log)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sensor log %s: %w", log.TrackingCode, err)
	}
	w.logger.Debug("sensor log published", "tracking_code", log.TrackingCode, "id", log.ID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a PersistedSensorLog into a Kafka message.
func serializeToMessage(log domain.PersistedSensorLog) (kafkago.Message, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sensor log: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(log.TrackingCode),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "log_id", Value: []byte(log.ID)},
			{Key: "sample_count", Value: []byte(strconv.Itoa(len(log.Samples)))},
			{Key: "saved_at", Value: []byte(log.SavedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
