// Package audit implements the audit logging service.
//
// Audit logs are append-only records. Hard-delete is not allowed.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/repository"
)

// Store appends audit entries.
type Store interface {
	Append(ctx context.Context, e repository.AuditEntry) error
}

// Logger writes audit records to a Store.
type Logger struct {
	store Store
}

// NewLogger creates a new audit Logger.
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// LogAction records an auditable action.
func (l *Logger) LogAction(ctx context.Context, action, resourceType, resourceID, actor string, details map[string]any) error {
	err := l.store.Append(ctx, repository.AuditEntry{
		ID:           generateAuditID(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Actor:        actor,
		Details:      details,
	})
	if err != nil {
		logger.Error("Failed to write audit log",
			zap.String("action", action),
			zap.String("resource_type", resourceType),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Subscribe records every account, settings and asset event dispatched on d.
func (l *Logger) Subscribe(d *domain.EventDispatcher) {
	d.Register(l.HandleEvent,
		domain.EventAccountUpdated,
		domain.EventUserUpdated,
		domain.EventSettingsSaved,
		domain.EventProfileAssetChanged,
	)
}

// HandleEvent is an EventHandler writing one audit entry per event.
func (l *Logger) HandleEvent(ctx context.Context, ev *domain.DomainEvent) error {
	var details map[string]any
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &details); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.EventType, err)
		}
	}
	if details == nil {
		details = map[string]any{}
	}
	details["event_id"] = ev.EventID
	return l.LogAction(ctx, string(ev.EventType), ev.AggregateType, ev.AggregateID, ev.CreatedBy, details)
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}
