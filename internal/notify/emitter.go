// Package notify records audit entries and raises low-stock alerts from
// ledger events. Nothing here can fail the operation that produced an event.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"medikasir/backend/internal/domain"
	"medikasir/backend/internal/events"
	"medikasir/backend/internal/metrics"
	"medikasir/backend/internal/xid"
)

type AuditSink interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

type NotificationSink interface {
	CreateNotification(ctx context.Context, notification domain.Notification) error
}

type RecipientDirectory interface {
	EligibleRecipients(ctx context.Context, branchID string, roles []string) ([]domain.Recipient, error)
}

// Sinks groups the collaborators; the stores implement all three.
type Sinks interface {
	AuditSink
	NotificationSink
	RecipientDirectory
}

type Config struct {
	Roles               []string
	DefaultReorderLevel int
	DedupWindow         time.Duration
	Clock               func() time.Time
}

type Emitter struct {
	sinks   Sinks
	deduper AlertDeduper
	config  Config
	metrics *metrics.Recorder
	logger  *zap.Logger
}

func NewEmitter(sinks Sinks, deduper AlertDeduper, config Config, recorder *metrics.Recorder, logger *zap.Logger) *Emitter {
	if len(config.Roles) == 0 {
		config.Roles = []string{"pharmacist", "branch_manager"}
	}
	if config.DefaultReorderLevel <= 0 {
		config.DefaultReorderLevel = 10
	}
	if config.DedupWindow <= 0 {
		config.DedupWindow = 24 * time.Hour
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if deduper == nil {
		deduper = NewMemoryDeduper()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{sinks: sinks, deduper: deduper, config: config, metrics: recorder, logger: logger}
}

// EventTypes lists what the emitter subscribes to.
func (e *Emitter) EventTypes() []string {
	return []string{
		events.TypeTransactionCreated,
		events.TypeCashMovementCreated,
		events.TypeEodSubmitted,
		events.TypeStockDecremented,
	}
}

func (e *Emitter) Handle(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.TypeTransactionCreated:
		return e.audit(ctx, event, domain.AuditActionTransactionCreate)
	case events.TypeCashMovementCreated:
		return e.audit(ctx, event, domain.AuditActionMovementCreate)
	case events.TypeEodSubmitted:
		return e.audit(ctx, event, domain.AuditActionEodSubmit)
	case events.TypeStockDecremented:
		return e.checkLowStock(ctx, event)
	default:
		return nil
	}
}

func (e *Emitter) audit(ctx context.Context, event events.Event, action string) error {
	actor := event.ActorID
	if actor == "" {
		actor = "system"
	}
	err := e.sinks.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		BranchID:   event.BranchID,
		ActorID:    actor,
		Action:     action,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Payload:    event.Payload,
		CreatedAt:  event.OccurredAt,
	})
	if err != nil {
		e.metrics.SideEffectFailed("audit")
		e.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", event.EntityType+"/"+event.EntityID),
			zap.Error(err),
		)
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func (e *Emitter) checkLowStock(ctx context.Context, event events.Event) error {
	level, err := event.StockLevel()
	if err != nil {
		return fmt.Errorf("decode stock level: %w", err)
	}

	threshold := level.Threshold(e.config.DefaultReorderLevel)
	if level.Quantity > threshold {
		return nil
	}

	recipients, err := e.sinks.EligibleRecipients(ctx, level.BranchID, e.config.Roles)
	if err != nil {
		e.metrics.LowStockAlert("failed")
		return fmt.Errorf("load recipients for %s: %w", level.BranchID, err)
	}

	code := level.ProductCode
	if code == "" {
		code = level.ProductID
	}
	payload, err := json.Marshal(map[string]any{
		"branch_id":    level.BranchID,
		"product_id":   level.ProductID,
		"product_code": code,
		"product_name": level.ProductName,
		"quantity":     level.Quantity,
		"threshold":    threshold,
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, recipient := range recipients {
		ok, err := e.deduper.Acquire(ctx, recipient.UserID, code, e.config.DedupWindow)
		if err != nil {
			e.metrics.LowStockAlert("failed")
			errs = append(errs, fmt.Errorf("dedup %s: %w", recipient.UserID, err))
			continue
		}
		if !ok {
			e.metrics.LowStockAlert("deduplicated")
			continue
		}

		err = e.sinks.CreateNotification(ctx, domain.Notification{
			ID:          xid.New("ntf"),
			RecipientID: recipient.UserID,
			BranchID:    level.BranchID,
			Category:    domain.NotificationLowStock,
			Title:       fmt.Sprintf("Low stock: %s (%d left)", lowStockName(level, code), level.Quantity),
			Payload:     payload,
			CreatedAt:   e.config.Clock().UTC(),
		})
		if err != nil {
			e.metrics.LowStockAlert("failed")
			if releaseErr := e.deduper.Release(ctx, recipient.UserID, code); releaseErr != nil {
				e.logger.Warn("failed to release alert slot", zap.String("recipient_id", recipient.UserID), zap.Error(releaseErr))
			}
			errs = append(errs, fmt.Errorf("notify %s: %w", recipient.UserID, err))
			continue
		}
		e.metrics.LowStockAlert("sent")
		e.logger.Info("low stock alert sent",
			zap.String("recipient_id", recipient.UserID),
			zap.String("product_code", code),
			zap.Int("quantity", level.Quantity),
			zap.Int("threshold", threshold),
		)
	}
	return errors.Join(errs...)
}

func lowStockName(level domain.StockLevel, code string) string {
	if level.ProductName != "" {
		return level.ProductName
	}
	return code
}
