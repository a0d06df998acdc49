package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending       BookingStatus = "PENDING"
	BookingStatusConfirmed     BookingStatus = "CONFIRMED"
	BookingStatusPaymentFailed BookingStatus = "PAYMENT_FAILED"
	BookingStatusCancelled     BookingStatus = "CANCELLED"
)

// Booking is a reservation of seats for a show by a user
type Booking struct {
	ID          string        `json:"id" db:"id"`
	BookingRef  string        `json:"booking_ref" db:"booking_ref"`
	UserID      string        `json:"user_id" db:"user_id"`
	ShowID      string        `json:"show_id" db:"show_id"`
	TheatreID   string        `json:"theatre_id" db:"theatre_id"`
	MovieID     string        `json:"movie_id" db:"movie_id"`
	SeatNumbers []string      `json:"seat_numbers" db:"seat_numbers"`
	TotalAmount float64       `json:"total_amount" db:"total_amount"`
	Status      BookingStatus `json:"status" db:"status"`
	PaymentID   string        `json:"payment_id,omitempty" db:"payment_id"`
	ShowTime    time.Time     `json:"show_time" db:"show_time"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// NewBookingRef generates a human-readable booking reference,
// e.g. BK-1735689600123-a1b2c3d4.
func NewBookingRef() string {
	return fmt.Sprintf("BK-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

// NewBooking creates a booking in PENDING state
func NewBooking(userID, showID, theatreID, movieID string, seats []string, totalAmount float64, showTime time.Time) *Booking {
	now := time.Now()
	return &Booking{
		ID:          uuid.New().String(),
		BookingRef:  NewBookingRef(),
		UserID:      userID,
		ShowID:      showID,
		TheatreID:   theatreID,
		MovieID:     movieID,
		SeatNumbers: seats,
		TotalAmount: totalAmount,
		Status:      BookingStatusPending,
		ShowTime:    showTime,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanTransitionTo reports whether the status change is legal.
// CONFIRMED is terminal; PENDING may move to CONFIRMED, PAYMENT_FAILED
// or CANCELLED.
func (b *Booking) CanTransitionTo(next BookingStatus) bool {
	switch b.Status {
	case BookingStatusPending:
		return next == BookingStatusConfirmed ||
			next == BookingStatusPaymentFailed ||
			next == BookingStatusCancelled
	case BookingStatusPaymentFailed:
		return next == BookingStatusCancelled
	default:
		return false
	}
}

// Confirm moves the booking to CONFIRMED and attaches the payment id
func (b *Booking) Confirm(paymentID string) error {
	if !b.CanTransitionTo(BookingStatusConfirmed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, BookingStatusConfirmed)
	}
	b.Status = BookingStatusConfirmed
	b.PaymentID = paymentID
	b.UpdatedAt = time.Now()
	return nil
}

// MarkPaymentFailed moves the booking to PAYMENT_FAILED
func (b *Booking) MarkPaymentFailed() error {
	if !b.CanTransitionTo(BookingStatusPaymentFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, BookingStatusPaymentFailed)
	}
	b.Status = BookingStatusPaymentFailed
	b.UpdatedAt = time.Now()
	return nil
}

// Cancel moves a non-confirmed booking to CANCELLED
func (b *Booking) Cancel() error {
	if !b.CanTransitionTo(BookingStatusCancelled) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, BookingStatusCancelled)
	}
	b.Status = BookingStatusCancelled
	b.UpdatedAt = time.Now()
	return nil
}
