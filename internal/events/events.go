// Package events publishes order lifecycle notifications to Kafka. The
// database stays the source of truth; a failed publish is logged and
// never undoes the change it describes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// publishTimeout bounds how long a request waits on the broker.
var publishTimeout = 3 * time.Second

type Type string

const (
	OrderPaid      Type = "order.paid"
	ReturnResolved Type = "return.resolved"
	OrderSettled   Type = "order.settled"
)

type Event struct {
	Type        Type            `json:"type"`
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number,omitempty"`
	UserID      int64           `json:"user_id,omitempty"`
	Status      string          `json:"status,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() {}

type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RecordDeliveryTimeout(publishTimeout),
		kgo.ProduceRequestTimeout(publishTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: cl, topic: topic}, nil
}

// Publish keys records by order id so every event of one order lands on
// the same partition in order.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(e.Type)},
		},
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// New picks the Kafka publisher when brokers are configured.
func New(brokers []string, topic string) (Publisher, error) {
	if len(brokers) == 0 {
		return Nop{}, nil
	}
	return NewKafkaPublisher(brokers, topic)
}

// Emit publishes e within publishTimeout and logs instead of returning a
// failure. An unreachable broker delays the caller by at most that long.
func Emit(ctx context.Context, p Publisher, logger *zap.Logger, e Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("publish event failed",
			zap.String("type", string(e.Type)),
			zap.Int64("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
