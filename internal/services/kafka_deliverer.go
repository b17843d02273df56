package services

import (
	"context"
	"encoding/json"
	"log"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"petpulse/internal/chat"
	appKafka "petpulse/internal/kafka"
)

// outgoingEnvelope is the payload carried on the outgoing Kafka topic. The
// origin connection id travels with the message so whichever chatserver
// instance holds that connection can skip it during fan-out.
type outgoingEnvelope struct {
	OriginConn string        `json:"originConn"`
	Message    *chat.Message `json:"message"`
}

// kafkaDeliverer implements Deliverer by producing persisted messages to the
// outgoing topic. Every chatserver instance consumes that topic and fans out
// to its own sockets, so delivery crosses instance boundaries.
type kafkaDeliverer struct {
	producer appKafka.MessageProducer
	topic    string
}

// NewKafkaDeliverer creates a Deliverer backed by the outgoing topic.
func NewKafkaDeliverer(producer appKafka.MessageProducer, topic string) Deliverer {
	return &kafkaDeliverer{producer: producer, topic: topic}
}

func (d *kafkaDeliverer) Deliver(msg *chat.Message, originConn string) {
	payload, err := json.Marshal(&outgoingEnvelope{OriginConn: originConn, Message: msg})
	if err != nil {
		log.Printf("error marshaling outgoing envelope for chat %s: %v", msg.ChatID, err)
		return
	}
	// The message is already persisted; a produce failure only costs live
	// delivery, and readers recover the message on their next history
	// load. Keyed by chat id so one conversation stays on one partition.
	if err := d.producer.SendMessage(context.Background(), d.topic, []byte(msg.ChatID), payload); err != nil {
		log.Printf("error producing outgoing message for chat %s: %v", msg.ChatID, err)
	}
}

// NewOutgoingConsumerHandler returns the Kafka handler a chatserver instance
// runs against the outgoing topic: unwrap the envelope and hand the message
// to the local hub.
func NewOutgoingConsumerHandler(local Deliverer) appKafka.MessageHandler {
	return func(ctx context.Context, kafkaMsg *confluentKafka.Message) error {
		var envelope outgoingEnvelope
		if err := json.Unmarshal(kafkaMsg.Value, &envelope); err != nil {
			// Skip the malformed message rather than stall the topic.
			log.Printf("error decoding outgoing envelope: %v", err)
			return nil
		}
		if envelope.Message == nil {
			return nil
		}
		local.Deliver(envelope.Message, envelope.OriginConn)
		return nil
	}
}
