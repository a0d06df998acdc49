package domain

import "time"

// BookingConfirmedEvent is the payload published to downstream consumers
// (notifications, analytics) when a booking is confirmed
type BookingConfirmedEvent struct {
	BookingID   string    `json:"bookingId"`
	BookingRef  string    `json:"bookingRef"`
	UserID      string    `json:"userId"`
	ShowID      string    `json:"showId"`
	TheatreID   string    `json:"theatreId"`
	MovieID     string    `json:"movieId"`
	SeatNumbers []string  `json:"seatNumbers"`
	TotalAmount float64   `json:"totalAmount"`
	PaymentID   string    `json:"paymentId"`
	ShowTime    time.Time `json:"showDateTime"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// NewBookingConfirmedEvent projects a confirmed booking into its event payload
func NewBookingConfirmedEvent(b *Booking) *BookingConfirmedEvent {
	return &BookingConfirmedEvent{
		BookingID:   b.ID,
		BookingRef:  b.BookingRef,
		UserID:      b.UserID,
		ShowID:      b.ShowID,
		TheatreID:   b.TheatreID,
		MovieID:     b.MovieID,
		SeatNumbers: b.SeatNumbers,
		TotalAmount: b.TotalAmount,
		PaymentID:   b.PaymentID,
		ShowTime:    b.ShowTime,
		ConfirmedAt: b.UpdatedAt,
	}
}

// BookingCancelledEvent is published when a booking is cancelled
type BookingCancelledEvent struct {
	BookingID   string    `json:"bookingId"`
	BookingRef  string    `json:"bookingRef"`
	UserID      string    `json:"userId"`
	ShowID      string    `json:"showId"`
	SeatNumbers []string  `json:"seatNumbers"`
	CancelledAt time.Time `json:"cancelledAt"`
}

// NewBookingCancelledEvent projects a cancelled booking into its event payload
func NewBookingCancelledEvent(b *Booking) *BookingCancelledEvent {
	return &BookingCancelledEvent{
		BookingID:   b.ID,
		BookingRef:  b.BookingRef,
		UserID:      b.UserID,
		ShowID:      b.ShowID,
		SeatNumbers: b.SeatNumbers,
		CancelledAt: b.UpdatedAt,
	}
}
