package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitInvalidator publishes invalidation signals to a topic exchange.
// Signals are advisory, so publish failures are logged and dropped
// rather than failing the mutation that triggered them.
type RabbitInvalidator struct {
	conn     *amqp091.Connection
	exchange string
	logger   *zap.Logger
}

func NewRabbitInvalidator(url, exchange string, logger *zap.Logger) (*RabbitInvalidator, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitInvalidator{
		conn:     conn,
		exchange: exchange,
		logger:   logger,
	}, nil
}

func (r *RabbitInvalidator) Invalidate(ctx context.Context, sig Signal) {
	ch, err := r.conn.Channel()
	if err != nil {
		r.logger.Error("Failed to open channel for invalidation", zap.Error(err))
		return
	}
	defer ch.Close()

	if sig.At.IsZero() {
		sig.At = time.Now()
	}
	body, err := json.Marshal(sig)
	if err != nil {
		r.logger.Error("Failed to marshal invalidation signal", zap.Error(err))
		return
	}

	for _, scope := range sig.Scopes {
		key := "invalidation." + string(scope)
		err := ch.PublishWithContext(
			ctx, r.exchange, key, false, false,
			amqp091.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp091.Persistent,
				MessageId:    uuid.NewString(),
				Timestamp:    sig.At,
				Body:         body,
			},
		)
		if err != nil {
			r.logger.Error("Failed to publish invalidation",
				zap.Error(err),
				zap.String("key", key))
			continue
		}
		r.logger.Debug("Published invalidation",
			zap.String("key", key),
			zap.Int64("conversation_id", sig.ConversationID))
	}
}

func (r *RabbitInvalidator) Close() error {
	return r.conn.Close()
}
