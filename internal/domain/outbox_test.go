package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxEvent(t *testing.T) {
	b := NewBooking("user-1", "show-1", "theatre-1", "movie-1", []string{"A1"}, 250.0, time.Now())
	require.NoError(t, b.Confirm("pay-1"))

	evt, err := NewOutboxEvent(AggregateTypeBooking, b.ID, EventTypeBookingConfirmed, NewBookingConfirmedEvent(b))
	require.NoError(t, err)

	assert.Equal(t, OutboxStatusPending, evt.Status)
	assert.Equal(t, 0, evt.RetryCount)
	assert.Equal(t, "BOOKING", evt.AggregateType)
	assert.Equal(t, b.ID, evt.AggregateID)

	var payload BookingConfirmedEvent
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, b.BookingRef, payload.BookingRef)
	assert.Equal(t, "pay-1", payload.PaymentID)
}

func TestOutboxPartitionKey(t *testing.T) {
	evt := &OutboxEvent{AggregateType: "BOOKING", AggregateID: "abc-123"}
	assert.Equal(t, "BOOKING-abc-123", evt.PartitionKey())
}

func TestOutboxRetryCeiling(t *testing.T) {
	evt, err := NewOutboxEvent(AggregateTypeBooking, "b-1", EventTypeBookingConfirmed, map[string]string{})
	require.NoError(t, err)

	for i := 0; i < OutboxMaxRetries; i++ {
		if !evt.CanRetry() {
			t.Fatalf("expected CanRetry at retry_count=%d", evt.RetryCount)
		}
		evt.MarkFailed("broker unreachable")
	}

	assert.Equal(t, OutboxMaxRetries, evt.RetryCount)
	assert.False(t, evt.CanRetry())
	assert.Equal(t, OutboxStatusFailed, evt.Status)
	assert.Equal(t, "broker unreachable", evt.ErrorMessage)
}

func TestOutboxMarkProcessed(t *testing.T) {
	evt, err := NewOutboxEvent(AggregateTypeBooking, "b-1", EventTypeBookingConfirmed, map[string]string{})
	require.NoError(t, err)

	evt.MarkProcessed()
	assert.Equal(t, OutboxStatusProcessed, evt.Status)
	require.NotNil(t, evt.ProcessedAt)
	assert.WithinDuration(t, time.Now(), *evt.ProcessedAt, time.Second)
}
