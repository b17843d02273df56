package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"petpulse/internal/config"
)

// InstanceGroupID derives a consumer group id unique to this process from the
// configured base. Every chatserver instance must see every outgoing record
// to reach its local sockets, so instances must never share a group.
func InstanceGroupID(base string) string {
	return base + "-" + uuid.NewString()
}

// MessageHandler processes one consumed Kafka message.
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// MessageConsumer consumes the outgoing-message topic on behalf of a
// chatserver instance.
type MessageConsumer interface {
	// Consume blocks until the context is canceled or a fatal broker
	// error occurs.
	Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error
	Close()
}

// confluentKafkaConsumer implements MessageConsumer with confluent-kafka-go.
type confluentKafkaConsumer struct {
	consumer *kafka.Consumer
	cfg      config.KafkaConfig
	groupID  string
}

// NewConfluentKafkaConsumer creates a Kafka consumer from the given config.
// The group id is supplied per Consume call.
func NewConfluentKafkaConsumer(cfg config.KafkaConfig) (MessageConsumer, error) {
	return &confluentKafkaConsumer{cfg: cfg}, nil
}

func (c *confluentKafkaConsumer) Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error {
	if len(topics) == 0 {
		return fmt.Errorf("kafka consumer: no topics specified")
	}
	c.groupID = groupID

	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(c.cfg.Brokers, ","),
		"group.id":           c.groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": "false",
		"security.protocol":  c.cfg.Protocol,
	}
	if c.cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", c.cfg.ClientID)
	}

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return fmt.Errorf("create kafka consumer for group %s: %w", groupID, err)
	}
	c.consumer = consumer

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		_ = c.consumer.Close()
		return fmt.Errorf("subscribe to topics %v for group %s: %w", topics, groupID, err)
	}

	log.Printf("kafka consumer started, group %s, topics %v", groupID, topics)

	run := true
	for run {
		select {
		case <-ctx.Done():
			log.Printf("context canceled for consumer group %s, shutting down", groupID)
			run = false
		default:
			ev := c.consumer.Poll(1000)
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *kafka.Message:
				if err := handler(ctx, e); err != nil {
					log.Printf("error processing kafka message (topic %s, offset %v): %v",
						*e.TopicPartition.Topic, e.TopicPartition.Offset, err)
				} else if _, err := c.consumer.CommitMessage(e); err != nil {
					log.Printf("failed to commit offset (topic %s, offset %v): %v",
						*e.TopicPartition.Topic, e.TopicPartition.Offset, err)
				}
			case kafka.Error:
				if e.IsFatal() {
					log.Printf("fatal kafka error for group %s: %v", groupID, e)
					return e
				}
				log.Printf("kafka consumer error for group %s: %v", groupID, e)
			case kafka.AssignedPartitions:
				c.consumer.Assign(e.Partitions)
			case kafka.RevokedPartitions:
				c.consumer.Unassign()
			}
		}
	}
	return nil
}

// Close closes the Kafka consumer.
func (c *confluentKafkaConsumer) Close() {
	if c.consumer != nil {
		if err := c.consumer.Close(); err != nil {
			log.Printf("error closing kafka consumer for group %s: %v", c.groupID, err)
		}
		c.consumer = nil
	}
}
