package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/sirupsen/logrus"
)

// AuditPublisher ships audit entries to downstream consumers.
type AuditPublisher interface {
	// Publish sends the entries in order and returns once all are delivered.
	Publish(ctx context.Context, entries []*audit.Entry) error
	Close()
}

var _ AuditPublisher = (*KafkaAuditPublisher)(nil)

type KafkaAuditPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaAuditPublisher connects to a comma separated list of brokers.
func NewKafkaAuditPublisher(brokers, topic string) (*KafkaAuditPublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.TrimSpace(brokers),
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaAuditPublisher{producer: producer, topic: topic}, nil
}

// Message builds the kafka message of an entry, keyed by document so entries
// of one document stay in one partition.
func Message(topic string, e *audit.Entry) (*kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}

	key := e.DocumentID
	if key == "" {
		key = e.ID.String()
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(e.Action)},
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}, nil
}

func (k *KafkaAuditPublisher) Publish(ctx context.Context, entries []*audit.Entry) error {
	deliveries := make(chan kafka.Event, len(entries))

	for _, e := range entries {
		msg, err := Message(k.topic, e)
		if err != nil {
			return err
		}
		if err := k.producer.Produce(msg, deliveries); err != nil {
			return fmt.Errorf("failed to produce audit entry %d: %w", e.Seq, err)
		}
	}

	for range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-deliveries:
			m, ok := ev.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				return fmt.Errorf("failed to deliver audit entry: %w", m.TopicPartition.Error)
			}
		}
	}

	return nil
}

func (k *KafkaAuditPublisher) Close() {
	if left := k.producer.Flush(5000); left > 0 {
		logrus.Warnf("%d audit messages were not delivered before close", left)
	}
	k.producer.Close()
}
