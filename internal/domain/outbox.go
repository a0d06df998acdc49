package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the dispatch state of an outbox event
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

const (
	// OutboxMaxRetries is the ceiling after which a failed event is left
	// for manual intervention
	OutboxMaxRetries = 3

	// AggregateTypeBooking tags booking-originated events
	AggregateTypeBooking = "BOOKING"

	// EventTypeBookingConfirmed is emitted when a booking reaches CONFIRMED
	EventTypeBookingConfirmed = "BOOKING_CONFIRMED"
	// EventTypeBookingCancelled is emitted when a booking is cancelled
	EventTypeBookingCancelled = "BOOKING_CANCELLED"
)

// OutboxEvent is a domain event persisted in the same transaction as the
// state change it describes, relayed to Kafka by the dispatcher
type OutboxEvent struct {
	ID            string       `json:"id" db:"id"`
	AggregateType string       `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   string       `json:"aggregate_id" db:"aggregate_id"`
	EventType     string       `json:"event_type" db:"event_type"`
	Payload       []byte       `json:"payload" db:"payload"`
	Status        OutboxStatus `json:"status" db:"status"`
	RetryCount    int          `json:"retry_count" db:"retry_count"`
	ErrorMessage  string       `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty" db:"processed_at"`
}

// NewOutboxEvent creates a PENDING event with the payload serialized as JSON
func NewOutboxEvent(aggregateType, aggregateID, eventType string, payload interface{}) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		Status:        OutboxStatusPending,
		RetryCount:    0,
		CreatedAt:     time.Now(),
	}, nil
}

// PartitionKey groups events of one aggregate onto one Kafka partition so
// consumers see them in order
func (e *OutboxEvent) PartitionKey() string {
	return e.AggregateType + "-" + e.AggregateID
}

// CanRetry reports whether the event is below the retry ceiling
func (e *OutboxEvent) CanRetry() bool {
	return e.RetryCount < OutboxMaxRetries
}

// MarkProcessed records a successful publish
func (e *OutboxEvent) MarkProcessed() {
	now := time.Now()
	e.Status = OutboxStatusProcessed
	e.ProcessedAt = &now
}

// MarkFailed records a publish failure and bumps the retry count
func (e *OutboxEvent) MarkFailed(errMsg string) {
	e.Status = OutboxStatusFailed
	e.RetryCount++
	e.ErrorMessage = errMsg
}
