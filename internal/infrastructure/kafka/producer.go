package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alexlazarev/shopcore/internal/models"
	pkgerrors "github.com/alexlazarev/shopcore/pkg/errors"
)

// CodeEvent is the verification-code message published for the delivery
// worker. The code is short-lived, but the event still never carries any
// draft-user data.
type CodeEvent struct {
	Channel   models.Channel `json:"channel"`
	Recipient string         `json:"recipient"`
	Code      int            `json:"code"`
	CreatedAt string         `json:"created_at"`
}

type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	// Synchronous writes: a failed dispatch must surface to the caller,
	// not silently succeed the registration step.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer, topic: topic}
}

// SendCode publishes the verification code for delivery on the channel
// matching the registration target.
func (p *Producer) SendCode(ctx context.Context, target models.RegistrationTarget, code int) error {
	event := CodeEvent{
		Channel:   target.Channel,
		Recipient: target.Recipient,
		Code:      code,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal code event: %v", pkgerrors.ErrDispatchFailed, err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(target.Recipient),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("failed to send code event", "topic", p.topic, "channel", target.Channel, "error", err)
		return fmt.Errorf("%w: %v", pkgerrors.ErrDispatchFailed, err)
	}
	slog.Info("code event sent", "topic", p.topic, "channel", target.Channel)
	return nil
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		slog.Error("failed to close Kafka writer", "error", err)
		return err
	}
	slog.Info("Kafka writer closed")
	return nil
}
