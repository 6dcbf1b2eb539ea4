package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"ms-seating/internal/logger"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer creates a Kafka consumer for the given topic and group.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes messages until the context is cancelled, handing each
// payload to the handler. Handler errors are logged and the loop keeps
// going; lifecycle events are retried by their producers, never dropped
// silently here.
func (c *Consumer) Start(ctx context.Context, handler func(value []byte) error) {
	c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "consumer stopped")
				return
			}
			c.logger.Error("KAFKA", "error reading message: "+err.Error())
			continue
		}

		if err := handler(msg.Value); err != nil {
			c.logger.Error("KAFKA", "handler failed for message on "+msg.Topic+": "+err.Error())
		}
	}
}

// Close gracefully shuts down the Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
