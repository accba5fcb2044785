package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventStatus represents the status of an event in the outbox pattern.
type EventStatus string

const (
	// EventStatusPending indicates the event has been created but not yet processed
	EventStatusPending EventStatus = "pending"
	// EventStatusProcessed indicates the event has been successfully processed
	EventStatusProcessed EventStatus = "processed"
	// EventStatusFailed indicates the event processing has failed
	EventStatusFailed EventStatus = "failed"
)

const (
	EventTypeProductCreated = "product.created"
	EventTypeProductUpdated = "product.updated"
	EventTypeProductDeleted = "product.deleted"
)

// Event represents an event entity for the outbox pattern.
type Event struct {
	ID          uuid.UUID
	EventType   string
	EventData   json.RawMessage
	Status      EventStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// InitMeta initializes the event metadata including ID and timestamps.
func (e *Event) InitMeta() {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	if e.Status == "" {
		e.Status = EventStatusPending
	}
}

// NewEvent builds a pending event with eventData marshaled as its payload.
func NewEvent(eventType string, eventData any) (*Event, error) {
	data, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return &Event{
		EventType: eventType,
		EventData: data,
		Status:    EventStatusPending,
	}, nil
}
