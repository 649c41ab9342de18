//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/prism-etl/internal/adapter/kafka"
	"github.com/couchcryptid/prism-etl/internal/config"
	"github.com/couchcryptid/prism-etl/internal/domain"
)

const eventsTopic = "prism-ingest-events-test"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-node Kafka in a container and returns its
// broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("prism-etl-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type receivedEvent struct {
	Kind    string
	Key     string
	Value   []byte
	Headers map[string]string
}

func readEvent(ctx context.Context, t *testing.T, consumer *kafkago.Reader) receivedEvent {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from events topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return receivedEvent{
		Kind:    headers["kind"],
		Key:     string(msg.Key),
		Value:   msg.Value,
		Headers: headers,
	}
}

// TestEmitterRoundTrip publishes a day event and a run summary through a real
// broker and verifies keys, headers, and payloads on the consumer side.
func TestEmitterRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, eventsTopic)

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   eventsTopic,
	}
	emitter := kafkaadapter.NewEmitter(cfg, discardLogger())
	t.Cleanup(func() { _ = emitter.Close() })

	day := time.Date(2005, time.June, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, emitter.DayIngested(ctx, domain.IngestEvent{
		Variable:   "tmean",
		Date:       day,
		Source:     "/daily/tmean/2005/PRISM_tmean_stable_4kmD2_20050615_bil.zip",
		Status:     domain.StatusIngested,
		OccurredAt: time.Now().UTC(),
	}))
	require.NoError(t, emitter.RunCompleted(ctx, domain.RunSummary{
		Variable:      "tmean",
		Years:         []int{2005},
		DaysProcessed: 1,
		Output:        "/data/tmean.zarr",
		CompletedAt:   time.Now().UTC(),
	}))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       eventsTopic,
		GroupID:     fmt.Sprintf("events-test-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	first := readEvent(ctx, t, consumer)
	assert.Equal(t, "day", first.Kind)
	assert.Equal(t, "tmean/20050615", first.Key)
	_, err := time.Parse(time.RFC3339, first.Headers["occurred_at"])
	assert.NoError(t, err, "occurred_at should be valid RFC3339")

	var event domain.IngestEvent
	require.NoError(t, json.Unmarshal(first.Value, &event))
	assert.Equal(t, domain.StatusIngested, event.Status)
	assert.True(t, event.Date.Equal(day))

	second := readEvent(ctx, t, consumer)
	assert.Equal(t, "run", second.Kind)
	assert.Equal(t, "tmean", second.Key)

	var summary domain.RunSummary
	require.NoError(t, json.Unmarshal(second.Value, &summary))
	assert.Equal(t, 1, summary.DaysProcessed)
	assert.Equal(t, []int{2005}, summary.Years)
}
