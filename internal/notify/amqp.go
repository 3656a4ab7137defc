package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const producer = "inbox-api"

// Meta is the event header every published message carries.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope wraps data with a fresh id; correlationID may be empty.
func NewEnvelope(eventType, correlationID string, data any) Envelope {
	p := producer
	env := Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: &p,
			Time:     time.Now().UTC(),
			Type:     eventType,
		},
		Data: data,
	}
	if correlationID != "" {
		env.Meta.CorrelationID = &correlationID
	}
	return env
}

// AMQPNotifier publishes agent notifications to a durable topic exchange.
type AMQPNotifier struct {
	conn     *amqp.Connection
	exchange string
	log      *slog.Logger
}

func NewAMQPNotifier(url, exchange string, log *slog.Logger) (*AMQPNotifier, error) {
	if exchange == "" {
		return nil, errors.New("notify: exchange required")
	}
	if log == nil {
		log = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: declare exchange: %w", err)
	}
	return &AMQPNotifier{conn: conn, exchange: exchange, log: log}, nil
}

var _ Notifier = (*AMQPNotifier)(nil)

func (a *AMQPNotifier) NotifyAgent(ctx context.Context, n Notification) error {
	return a.Publish(ctx, RoutingKeyContactRequested, NewEnvelope(RoutingKeyContactRequested, n.ConversationID, n))
}

// Publish sends one envelope and waits for the broker confirm.
func (a *AMQPNotifier) Publish(ctx context.Context, key string, env Envelope) error {
	ch, err := a.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	cid := env.Meta.ID
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}

	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, a.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: cid,
		Timestamp:     env.Meta.Time,
		Type:          env.Meta.Type,
		Body:          body,
	})
	if err != nil {
		return err
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notify: broker nacked %s", key)
	}
	a.log.Info("published", slog.String("key", key), slog.String("exchange", a.exchange))
	return nil
}

func (a *AMQPNotifier) Close() error {
	return a.conn.Close()
}
