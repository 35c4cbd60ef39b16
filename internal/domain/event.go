package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of domain event.
type EventType string

const (
	EventAccountUpdated      EventType = "account.updated"
	EventUserUpdated         EventType = "user.updated"
	EventSettingsSaved       EventType = "settings.saved"
	EventProfileAssetChanged EventType = "profile_asset.changed"
)

// Aggregate types carried by events.
const (
	AggregateUser     = "user"
	AggregateSettings = "settings"
	AggregateAsset    = "profile_asset"
)

// DomainEvent is an immutable record of something that changed.
type DomainEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Payload       []byte    `json:"payload"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewEvent builds an event with a time-ordered id and a JSON payload.
func NewEvent(eventType EventType, aggregateType, aggregateID, actor string, payload any) (*DomainEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	var raw []byte
	if payload != nil {
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
	}
	return &DomainEvent{
		EventID:       id.String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       raw,
		CreatedBy:     actor,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// AccountPatchPayload records which fields an account update touched.
// Values are left out so passwords never reach the audit trail.
type AccountPatchPayload struct {
	UserID int64    `json:"user_id"`
	Fields []string `json:"fields"`
}

// SettingsSavedPayload lists the panels committed in one save cycle.
type SettingsSavedPayload struct {
	SessionID string   `json:"session_id"`
	Panels    []string `json:"panels"`
}

// ProfileAssetPayload describes an avatar upload or removal.
type ProfileAssetPayload struct {
	UserID      int64  `json:"user_id"`
	Operation   string `json:"operation"` // upload, remove
	AssetID     string `json:"asset_id,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}
