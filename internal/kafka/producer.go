package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"printmill/internal/logger"
	"printmill/internal/models"
)

// Producer publishes design and order lifecycle events, one writer per topic.
// Messages are keyed by entity id so per-entity ordering survives partitioning.
type Producer struct {
	designWriter *kafka.Writer
	orderWriter  *kafka.Writer
	logger       *logger.Logger
}

func NewProducer(brokers []string, designTopic, orderTopic string, log *logger.Logger) *Producer {
	return &Producer{
		designWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   designTopic,
		}),
		orderWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   orderTopic,
		}),
		logger: log,
	}
}

// PublishDesignEvent streams a design lifecycle event keyed by design id.
func (p *Producer) PublishDesignEvent(ev models.DesignEvent) error {
	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.logger.LogKafka("PUBLISH", p.designWriter.Topic, ev.Kind+" for design "+ev.DesignID)

	return p.designWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(ev.DesignID),
			Value: msgBytes,
		},
	)
}

// PublishOrderEvent streams an order lifecycle event keyed by order id.
func (p *Producer) PublishOrderEvent(ev models.OrderLifecycleEvent) error {
	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.logger.LogKafka("PUBLISH", p.orderWriter.Topic, ev.Kind+" for order "+ev.OrderID)

	return p.orderWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(ev.OrderID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	if err := p.designWriter.Close(); err != nil {
		return err
	}
	return p.orderWriter.Close()
}
