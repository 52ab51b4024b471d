package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	kafkaGo "github.com/segmentio/kafka-go"
)

// Help lifecycle event types.
const (
	HelpAssigned         = "help.assigned"
	HelpPaymentSubmitted = "help.payment_submitted"
	HelpConfirmed        = "help.confirmed"
	HelpDisputed         = "help.disputed"
	HelpExpired          = "help.expired"
	HelpCancelled        = "help.cancelled"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	HelpID     uint      `json:"send_help_id"`
	SenderID   uint      `json:"sender_id"`
	ReceiverID uint      `json:"receiver_id"`
	Level      string    `json:"level"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits help lifecycle events. Implementations must not block callers on failure.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
	Close() error
}

// Nop discards events; used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
func (Nop) Close() error                   { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by help id so one help's events stay ordered.
type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkaGo.Hash{},
		RequiredAcks:           kafkaGo.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}
}

// New returns a Kafka publisher when brokers are set, otherwise Nop.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(brokers, topic)
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) {
	if err := p.publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("section", "events").Str("type", ev.Type).Uint("send_help_id", ev.HelpID).Msg("publish failed")
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := kafkaGo.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.HelpID), 10)),
		Value: raw,
		Headers: []kafkaGo.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return errors.Wrap(p.w.WriteMessages(ctx, msg), "write kafka message")
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
