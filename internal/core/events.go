package core

import (
	"context"
	"encoding/json"
	"time"
)

// Event names emitted after successful commits.
const (
	EventCompanyRegistered    = "company.registered"
	EventDrugMinted           = "drug.minted"
	EventPurchaseOrderCreated = "purchase_order.created"
	EventShipmentCreated      = "shipment.created"
	EventShipmentDelivered    = "shipment.delivered"
	EventDrugRetailed         = "drug.retailed"
)

// Event describes a committed state change.
type Event struct {
	Name      string          `json:"name"`
	Key       string          `json:"key"`
	TxID      string          `json:"txId"`
	Caller    string          `json:"caller"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// EventPublisher delivers events to downstream consumers. Publishing happens
// after commit, so a failure is logged and never rolls the operation back.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventPublisherFunc adapts a function to EventPublisher.
type EventPublisherFunc func(ctx context.Context, event Event) error

// Publish implements EventPublisher.
func (f EventPublisherFunc) Publish(ctx context.Context, event Event) error { return f(ctx, event) }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
