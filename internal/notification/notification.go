package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// DefaultChannel is the Redis channel committed transactions are published on.
const DefaultChannel = "icrc_ledger:transactions"

// Message describes a committed transaction for downstream consumers.
type Message struct {
	Kind        transaction.Kind `json:"kind"`
	Index       uint64           `json:"index"`
	Destination string           `json:"destination"`
	Body        json.RawMessage  `json:"body"`
}

// NewMessage builds the message for tx. Destination is the account the
// transaction credits, or the owner for burns and approvals.
func NewMessage(tx transaction.Transaction) (Message, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return Message{}, fmt.Errorf("encode transaction %d: %w", tx.Index, err)
	}
	msg := Message{Kind: tx.Kind, Index: tx.Index, Body: body}
	switch {
	case tx.To != nil:
		msg.Destination = tx.To.String()
	case tx.From != nil:
		msg.Destination = tx.From.String()
	}
	return msg, nil
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", string(message.Kind)),
		slog.Uint64("index", message.Index),
		slog.String("destination", message.Destination),
	)
	return nil
}

// RedisNotifier publishes notifications on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier constructs a notifier publishing on channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Send publishes the JSON encoded message.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
