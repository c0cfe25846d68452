package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"printmill/internal/logger"
	"printmill/internal/models"
)

// DesignEventConsumer reads the design lifecycle topic and hands each event
// to a handler (the SSE emitter in the API service).
type DesignEventConsumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewDesignEventConsumer(brokers []string, topic, groupID string, log *logger.Logger) *DesignEventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &DesignEventConsumer{reader: reader, logger: log}
}

// Start consumes until the context is cancelled. Undecodable messages are
// logged and skipped; the stream is advisory, the stores are authoritative.
func (c *DesignEventConsumer) Start(ctx context.Context, handler func(ev models.DesignEvent)) {
	c.logger.LogKafka("START", c.reader.Config().Topic, "design event consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		var ev models.DesignEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal design event: %v", err))
			continue
		}

		handler(ev)
	}
}

// Close gracefully shuts down the Kafka reader.
func (c *DesignEventConsumer) Close() error {
	return c.reader.Close()
}
