// Package events carries order lifecycle notifications to subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/models"
)

// Event types
const (
	OrderCreated       = "order.created"
	OrderStatusChanged = "order.status_changed"
	OrderAssigned      = "order.assigned"
)

// Event describes a change to one order
type Event struct {
	Type       string             `json:"type"`
	OrderID    string             `json:"orderId"`
	BuyerID    string             `json:"buyer"`
	VendorID   string             `json:"vendor"`
	DeliveryID string             `json:"delivery,omitempty"`
	Status     models.OrderStatus `json:"status"`
	Total      int64              `json:"totalAmount"`
	At         time.Time          `json:"at"`
}

// FromOrder builds an event for the current state of o
func FromOrder(typ string, o *models.Order) Event {
	return Event{
		Type:       typ,
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		VendorID:   o.VendorID,
		DeliveryID: o.DeliveryID,
		Status:     o.Status,
		Total:      o.TotalAmount,
		At:         o.UpdatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher and joins their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Kafka writes events keyed by order id so one order stays on one partition.
// Writes are batched in the background; a broker outage is logged and never
// holds up the request that produced the event.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string, log *zap.Logger) *Kafka {
	if log == nil {
		log = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		MaxAttempts:            3,
		BatchTimeout:           100 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("failed to publish order events",
					zap.String("topic", topic), zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	return &Kafka{writer: w}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{Key: []byte(e.OrderID), Value: value, Time: e.At}
	if err := k.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close flushes queued events
func (k *Kafka) Close() error { return k.writer.Close() }
