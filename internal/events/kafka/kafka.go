// Package kafka moves ledger events over a Kafka topic. Messages are keyed by
// owner id, so all events of one owner land on one partition in commit order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"blackout/internal/events"

	"github.com/segmentio/kafka-go"
)

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, e events.LedgerEvent) error {
	msg, err := message(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func message(e events.LedgerEvent) (kafka.Message, error) {
	data, err := e.Marshal()
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OwnerID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.EventID)},
		},
		Time: e.OccurredAt,
	}, nil
}

// messageReader is the part of kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads events as part of a consumer group. An offset is committed
// only after the handler succeeded; a failing event is retried in place so
// the owner's ordering is kept.
type Consumer struct {
	reader     messageReader
	retryPause time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		retryPause: time.Second,
	}
}

func (c *Consumer) Consume(ctx context.Context, h events.Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		e, err := events.Unmarshal(msg.Value)
		if err != nil {
			slog.ErrorContext(ctx, "Skipping undecodable Kafka message",
				"error", err, "partition", msg.Partition, "offset", msg.Offset)
		} else if err := c.handle(ctx, h, e); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h events.Handler, e events.LedgerEvent) error {
	for {
		err := h(ctx, e)
		if err == nil {
			return nil
		}
		slog.ErrorContext(ctx, "Failed to handle Kafka event, retrying",
			"error", err, "event_id", e.EventID, "event_type", e.Type)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryPause):
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

var (
	_ events.Publisher = (*Publisher)(nil)
	_ events.Consumer  = (*Consumer)(nil)
)
