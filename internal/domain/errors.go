package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies booking failures so the transport layer can map them
// to status codes without string matching
type ErrorKind string

const (
	// ErrKindResourceBusy means the seat lock could not be acquired in time
	ErrKindResourceBusy ErrorKind = "RESOURCE_BUSY"
	// ErrKindSeatsUnavailable means one or more requested seats are taken
	ErrKindSeatsUnavailable ErrorKind = "SEATS_UNAVAILABLE"
	// ErrKindPaymentFailed means the payment gateway declined or errored
	ErrKindPaymentFailed ErrorKind = "PAYMENT_FAILED"
	// ErrKindPersistence means a database write failed mid-flow
	ErrKindPersistence ErrorKind = "PERSISTENCE_ERROR"
	// ErrKindNotFound means the referenced entity does not exist
	ErrKindNotFound ErrorKind = "NOT_FOUND"
	// ErrKindInvalidState means the operation is illegal for the current status
	ErrKindInvalidState ErrorKind = "INVALID_STATE"
)

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrShowNotFound      = errors.New("show not found")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrLockNotAcquired   = errors.New("seat lock not acquired")
)

// BookingError is the typed failure returned by the booking flow
type BookingError struct {
	Kind ErrorKind
	// UnavailableSeats is populated for SEATS_UNAVAILABLE so the client can
	// show exactly which seats conflicted
	UnavailableSeats []string
	Message          string
	Err              error
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

// NewResourceBusyError signals the lock wait timed out
func NewResourceBusyError(showID string) *BookingError {
	return &BookingError{
		Kind:    ErrKindResourceBusy,
		Message: fmt.Sprintf("seats for show %s are being booked by another user, please retry", showID),
		Err:     ErrLockNotAcquired,
	}
}

// NewSeatsUnavailableError carries the conflicting seat numbers
func NewSeatsUnavailableError(seats []string) *BookingError {
	return &BookingError{
		Kind:             ErrKindSeatsUnavailable,
		UnavailableSeats: seats,
		Message:          fmt.Sprintf("seats not available: %v", seats),
	}
}

// NewPaymentFailedError wraps a gateway decline or transport error
func NewPaymentFailedError(bookingRef string, err error) *BookingError {
	return &BookingError{
		Kind:    ErrKindPaymentFailed,
		Message: fmt.Sprintf("payment failed for booking %s", bookingRef),
		Err:     err,
	}
}

// NewPersistenceError wraps a failed database write
func NewPersistenceError(op string, err error) *BookingError {
	return &BookingError{
		Kind:    ErrKindPersistence,
		Message: fmt.Sprintf("persistence failure during %s", op),
		Err:     err,
	}
}

// AsBookingError unwraps err into a *BookingError if it is one
func AsBookingError(err error) (*BookingError, bool) {
	var be *BookingError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
