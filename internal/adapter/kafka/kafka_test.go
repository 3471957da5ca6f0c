package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
)

type fakeMessageWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeMessageWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeMessageWriter) Close() error {
	f.closed = true
	return nil
}

func testLog() domain.PersistedSensorLog {
	return domain.PersistedSensorLog{
		ID:           "9b2f7c1e-0000-4000-8000-000000000001",
		TrackingCode: "TH123",
		ShippedAt:    "2024-01-15T08:00:00",
		DeliveredAt:  "2024-01-15T09:00:00",
		Samples: []domain.SensorSample{
			{Temperature: 4.1, Timestamp: "2024-01-15 08:10:00"},
			{Temperature: 4.4, Timestamp: "2024-01-15 08:40:00"},
		},
		SavedAt: time.Date(2024, 1, 15, 9, 0, 3, 0, time.UTC),
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testLog())
	require.NoError(t, err)

	assert.Equal(t, []byte("TH123"), msg.Key)
	assert.Contains(t, string(msg.Value), `"tracking_code":"TH123"`)
	assert.Contains(t, string(msg.Value), `"timestamp":"2024-01-15 08:10:00"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "log_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("9b2f7c1e-0000-4000-8000-000000000001"), msg.Headers[0].Value)
	assert.Equal(t, "sample_count", msg.Headers[1].Key)
	assert.Equal(t, []byte("2"), msg.Headers[1].Value)
	assert.Equal(t, "saved_at", msg.Headers[2].Key)
	assert.Equal(t, []byte("2024-01-15T09:00:03Z"), msg.Headers[2].Value)
}

func TestWriter_PublishSensorLog(t *testing.T) {
	fake := &fakeMessageWriter{}
	w := &Writer{writer: fake, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, w.PublishSensorLog(context.Background(), testLog()))
	require.Len(t, fake.msgs, 1)
	assert.Equal(t, []byte("TH123"), fake.msgs[0].Key)

	require.NoError(t, w.Close())
	assert.True(t, fake.closed)
}

func TestWriter_PublishSensorLogError(t *testing.T) {
	fake := &fakeMessageWriter{err: errors.New("leader not available")}
	w := &Writer{writer: fake, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := w.PublishSensorLog(context.Background(), testLog())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TH123")
}
