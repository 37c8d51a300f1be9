package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sony/gobreaker"

	"github.com/orderdesk/api/internal/services"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// ErrPublisherOpen is returned while the breaker rejects publishes.
var ErrPublisherOpen = errors.New("pubsub event publisher: circuit open")

// BreakerSettings tunes the circuit in front of the topic.
type BreakerSettings struct {
	// ConsecutiveFailures that open the circuit.
	ConsecutiveFailures int
	// Cooldown before the breaker lets a trial publish through.
	Cooldown time.Duration
}

// PubSubEventPublisher sends order and stock events to one topic. Services
// treat publishing as best effort, so a Pub/Sub outage trips the breaker and
// later publishes fail fast instead of holding requests open.
type PubSubEventPublisher struct {
	send    func(ctx context.Context, msg *pubsub.Message) (string, error)
	breaker *gobreaker.CircuitBreaker
}

var (
	_ services.OrderEventPublisher = (*PubSubEventPublisher)(nil)
	_ services.StockEventPublisher = (*PubSubEventPublisher)(nil)
)

func NewPubSubEventPublisher(topic *pubsub.Topic, settings BreakerSettings) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return newPublisher(func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return topic.Publish(ctx, msg).Get(ctx)
	}, topic.ID(), settings), nil
}

func newPublisher(send func(context.Context, *pubsub.Message) (string, error), name string, settings BreakerSettings) *PubSubEventPublisher {
	failures := settings.ConsecutiveFailures
	if failures <= 0 {
		failures = defaultBreakerFailures
	}
	cooldown := settings.Cooldown
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pubsub:" + name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
	})
	return &PubSubEventPublisher{send: send, breaker: breaker}
}

// PublishOrderEvent publishes an order lifecycle event.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	attrs := map[string]string{}
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "displayId", event.DisplayID)
	setAttr(attrs, "status", event.CurrentStatus)
	return p.publish(ctx, event, attrs)
}

// PublishStockEvent publishes one committed stock movement.
func (p *PubSubEventPublisher) PublishStockEvent(ctx context.Context, event services.StockEvent) error {
	attrs := map[string]string{}
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "code", event.Code)
	setAttr(attrs, "size", event.Size)
	setAttr(attrs, "orderId", event.OrderID)
	attrs["delta"] = strconv.Itoa(event.Delta)
	return p.publish(ctx, event, attrs)
}

func (p *PubSubEventPublisher) publish(ctx context.Context, payload any, attrs map[string]string) error {
	if p == nil || p.send == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", attrs["type"], err)
	}
	_, err = p.breaker.Execute(func() (interface{}, error) {
		return p.send(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrPublisherOpen
	case err != nil:
		return fmt.Errorf("publish %s event: %w", attrs["type"], err)
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
