// Package events carries post-commit ledger events to best-effort handlers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"medikasir/backend/internal/domain"
	"medikasir/backend/internal/xid"
)

const (
	TypeTransactionCreated  = "transaction.created"
	TypeCashMovementCreated = "cash_movement.created"
	TypeEodSubmitted        = "eod.submitted"
	TypeStockDecremented    = "stock.decremented"
)

type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	BranchID   string          `json:"branch_id"`
	ActorID    string          `json:"actor_id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an event stamped with at.
func New(at time.Time, eventType string, branchID string, actorID string, entityType string, entityID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         xid.New("evt"),
		Type:       eventType,
		BranchID:   branchID,
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		OccurredAt: at.UTC(),
		Payload:    raw,
	}, nil
}

// StockLevel decodes the payload of a stock.decremented event.
func (e Event) StockLevel() (domain.StockLevel, error) {
	var level domain.StockLevel
	err := json.Unmarshal(e.Payload, &level)
	return level, err
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...Event) error {
	return nil
}
