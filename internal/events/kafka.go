package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// partitioned is implemented by events that pin themselves to a partition.
type partitioned interface {
	PartitionKey() string
}

// KafkaPublisher implements Publisher for Apache Kafka.
type KafkaPublisher struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	log     *zap.Logger
}

// NewKafkaPublisher creates a new Kafka publisher. Writers are created
// lazily per topic.
func NewKafkaPublisher(brokers []string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
		log:     log,
	}
}

// PublishEvent publishes an event to Kafka.
func (k *KafkaPublisher) PublishEvent(ctx context.Context, topic string, event interface{}) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	k.log.Debug("publishing event to kafka",
		zap.String("topic", topic),
		zap.Int("event_size", len(eventData)),
	)

	writer := k.writerFor(topic)

	eventKey := fmt.Sprintf("%s-%d", topic, time.Now().UnixNano())
	if p, ok := event.(partitioned); ok {
		eventKey = p.PartitionKey()
	}

	msg := kafka.Message{
		Key:   []byte(eventKey),
		Value: eventData,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(topic)},
			{Key: "timestamp", Value: []byte(time.Now().Format(time.RFC3339))},
		},
	}

	return writer.WriteMessages(ctx, msg)
}

func (k *KafkaPublisher) writerFor(topic string) *kafka.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()

	if w, ok := k.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(k.brokers...),
		Topic:        topic,
		Balancer:     &kafka.CRC32Balancer{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
	}
	k.writers[topic] = w
	return w
}

// Close flushes and closes all topic writers.
func (k *KafkaPublisher) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var lastErr error
	for topic, w := range k.writers {
		if err := w.Close(); err != nil {
			k.log.Error("failed to close kafka writer", zap.String("topic", topic), zap.Error(err))
			lastErr = err
		}
	}
	k.writers = make(map[string]*kafka.Writer)
	return lastErr
}
