package aml

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/musig5344/ocasino-sub000/internal/events"
)

// Consumer feeds transaction events from Kafka into the risk engine, for
// deployments where the ledger runs in a different process. In-process
// deployments subscribe the engine to the event bus instead.
type Consumer struct {
	reader *kafka.Reader
	engine *Engine
	logger *zap.SugaredLogger
}

func NewConsumer(brokers []string, groupID, topic string, engine *Engine, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{reader: reader, engine: engine, logger: logger.Sugar()}
}

// Run consumes until the context is canceled. Bad messages are logged and
// skipped; assessment failures do not stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorw("failed to read transaction event", "error", err)
			continue
		}

		var event events.TransactionCompletedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Errorw("failed to decode transaction event",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"error", err)
			continue
		}

		if _, err := c.engine.Assess(ctx, &event); err != nil {
			c.logger.Errorw("risk assessment failed",
				"transaction_id", event.TransactionID,
				"error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
