package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"course-marketplace/config"

	"github.com/segmentio/kafka-go"
)

// Message is one record to publish. Key drives partitioning, so all events
// for one purchase land on the same partition.
type Message struct {
	Key   string
	Type  string
	Value []byte
}

type Publisher struct {
	writer *kafka.Writer
	log    *slog.Logger
}

func NewPublisher(cfg config.Kafka, log *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers list is empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is empty")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &Publisher{writer: w, log: log}, nil
}

func (p *Publisher) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, kafka.Message{
			Key:     []byte(m.Key),
			Value:   m.Value,
			Headers: []kafka.Header{{Key: "type", Value: []byte(m.Type)}},
		})
	}
	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(out), p.writer.Topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.log.Info("closing kafka writer")
	return p.writer.Close()
}

// LogPublisher stands in for Kafka when no brokers are configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, msgs ...Message) error {
	for _, m := range msgs {
		p.Log.Info("event", slog.String("type", m.Type), slog.String("key", m.Key), slog.String("payload", string(m.Value)))
	}
	return nil
}

func (LogPublisher) Close() error { return nil }
