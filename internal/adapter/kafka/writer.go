package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/config"
	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier publishes one message per committed record.
// It implements pipeline.Notifier.
type Notifier struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured topic.
func NewNotifier(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, clock: clock, logger: logger.With("component", "kafka", "topic", cfg.KafkaTopic)}
}

// Notify publishes the committed documents in a single WriteMessages call.
func (n *Notifier) Notify(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	committedAt := n.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(docs))
	for i := range docs {
		msg, err := serializeToMessage(docs[i], committedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d commit notifications: %w", len(msgs), err)
	}
	n.logger.Debug("commit notifications published", "records", len(msgs))
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage keys the message by the record's natural key so
// repeated commits of one record land on the same partition.
func serializeToMessage(doc domain.Document, committedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s: %w", doc.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(doc.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "index", Value: []byte(doc.Index)},
			{Key: "table", Value: []byte(doc.Table)},
			{Key: "committed_at", Value: []byte(committedAt.Format(time.RFC3339))},
		},
	}, nil
}
