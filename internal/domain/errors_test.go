package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatsUnavailableErrorCarriesSeats(t *testing.T) {
	err := NewSeatsUnavailableError([]string{"A1", "B2"})

	be, ok := AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindSeatsUnavailable, be.Kind)
	assert.Equal(t, []string{"A1", "B2"}, be.UnavailableSeats)
}

func TestBookingErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewPersistenceError("confirm booking", cause)

	assert.ErrorIs(t, err, cause)

	// wrapped further up the stack it still unwraps
	wrapped := fmt.Errorf("book tickets: %w", err)
	be, ok := AsBookingError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrKindPersistence, be.Kind)
}

func TestResourceBusyUnwrapsSentinel(t *testing.T) {
	err := NewResourceBusyError("show-1")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	be, ok := AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindResourceBusy, be.Kind)
}

func TestAsBookingErrorOnPlainError(t *testing.T) {
	_, ok := AsBookingError(errors.New("plain"))
	assert.False(t, ok)
}
