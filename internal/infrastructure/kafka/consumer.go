package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/alexlazarev/shopcore/internal/models"
)

// CodeMailer is implemented by the SMTP mailer.
type CodeMailer interface {
	SendRegistrationCode(recipient string, code int) error
}

// Consumer is the delivery worker: it drains the notifications topic and
// hands each code to the channel-appropriate transport.
type Consumer struct {
	reader *kafka.Reader
	mailer CodeMailer
}

func NewConsumer(brokers []string, topic, groupID string, mailer CodeMailer) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		mailer: mailer,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		var event CodeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal code event", "error", err)
			continue
		}

		switch event.Channel {
		case models.ChannelEmail:
			if err := c.mailer.SendRegistrationCode(event.Recipient, event.Code); err != nil {
				slog.Error("failed to deliver registration code", "recipient", event.Recipient, "error", err)
				continue
			}
			slog.Info("registration code delivered", "channel", event.Channel)
		case models.ChannelPhone:
			// TODO: wire an SMS gateway; until then phone codes go nowhere.
			slog.Warn("sms delivery not configured, dropping code", "recipient", event.Recipient)
		default:
			slog.Error("unknown notification channel", "channel", event.Channel)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
