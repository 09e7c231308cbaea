package kafka

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// MessageHandler processes one raw message payload. A returned error is
// logged; the message is considered consumed either way.
type MessageHandler func(ctx context.Context, value []byte) error

// Consumer runs a consumer-group read loop on a single topic.
type Consumer struct {
	reader  *kafkago.Reader
	handler MessageHandler
	log     zerolog.Logger
}

// NewConsumer creates a consumer for the given topic and group.
func NewConsumer(brokers []string, groupID, topic string, handler MessageHandler, log zerolog.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: kafkago.LastOffset,
	})
	return &Consumer{reader: reader, handler: handler, log: log}
}

// Run consumes until the context is cancelled. Handler failures do not stop
// the loop; they are contained per message.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// io.EOF means the reader was closed.
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Error().Err(err).Str("topic", c.reader.Config().Topic).Msg("kafka read failed")
			continue
		}

		if err := c.handler(ctx, msg.Value); err != nil {
			c.log.Error().Err(err).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("message handling failed")
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
