package services

import (
	"context"
	"time"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventEdited        = "order.edited"
	orderEventExchanged     = "order.exchanged"
	orderEventPartialSplit  = "order.partial_exchange.split"

	stockEventAdjusted = "stock.adjusted"
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	DisplayID      string         `json:"displayId,omitempty"`
	OrderType      string         `json:"orderType,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// StockEventPublisher publishes committed stock movements.
type StockEventPublisher interface {
	PublishStockEvent(ctx context.Context, event StockEvent) error
}

// StockEvent describes one committed movement.
type StockEvent struct {
	Type       string    `json:"type"`
	Code       string    `json:"code"`
	Size       string    `json:"size,omitempty"`
	Delta      int       `json:"delta"`
	Balance    int       `json:"balance"`
	OrderID    string    `json:"orderId,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// StockEventMeta is the context attached to announced movements.
type StockEventMeta struct {
	OrderID string
	Reason  string
	ActorID string
}
