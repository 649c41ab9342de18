// Package kafka publishes ingest progress events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/prism-etl/internal/config"
	"github.com/couchcryptid/prism-etl/internal/domain"
)

// Event kinds carried in the "kind" message header.
const (
	kindDay = "day"
	kindRun = "run"
)

// Emitter produces ingest events to the configured Kafka topic.
// It implements pipeline.Notifier.
type Emitter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewEmitter creates a Kafka producer for the configured events topic.
func NewEmitter(cfg *config.Config, logger *slog.Logger) *Emitter {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Emitter{writer: w, logger: logger}
}

// DayIngested publishes the outcome of one daily archive.
func (e *Emitter) DayIngested(ctx context.Context, event domain.IngestEvent) error {
	msg, err := serializeDayEvent(event)
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, msg)
}

// RunCompleted publishes the summary of a finished run.
func (e *Emitter) RunCompleted(ctx context.Context, summary domain.RunSummary) error {
	msg, err := serializeRunSummary(summary)
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, msg)
}

func (e *Emitter) Close() error {
	return e.writer.Close()
}

// serializeDayEvent marshals an IngestEvent into a Kafka message keyed by
// variable and date, so a compacted topic retains the latest outcome per day.
// A day skipped for an unparseable filename date has no date to key by; those
// fall back to the source archive name so distinct failures keep distinct keys.
func serializeDayEvent(event domain.IngestEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize ingest event: %w", err)
	}
	suffix := event.Date.Format("20060102")
	if event.Date.IsZero() {
		suffix = path.Base(event.Source)
	}
	return kafkago.Message{
		Key:   []byte(fmt.Sprintf("%s/%s", event.Variable, suffix)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(kindDay)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}

// serializeRunSummary marshals a RunSummary into a Kafka message keyed by
// variable.
func serializeRunSummary(summary domain.RunSummary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.Variable),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(kindRun)},
			{Key: "completed_at", Value: []byte(summary.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
