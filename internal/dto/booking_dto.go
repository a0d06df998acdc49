package dto

import (
	"time"

	"github.com/sgknoldus/movie-booking-sub000/internal/domain"
)

// BookTicketsRequest is the booking creation payload
type BookTicketsRequest struct {
	ShowID      string   `json:"show_id" binding:"required"`
	SeatNumbers []string `json:"seat_numbers" binding:"required,min=1,max=10,dive,required"`
}

// BookingResponse is the API shape of a booking
type BookingResponse struct {
	BookingRef  string    `json:"booking_ref"`
	UserID      string    `json:"user_id"`
	ShowID      string    `json:"show_id"`
	TheatreID   string    `json:"theatre_id"`
	MovieID     string    `json:"movie_id"`
	SeatNumbers []string  `json:"seat_numbers"`
	TotalAmount float64   `json:"total_amount"`
	Status      string    `json:"status"`
	PaymentID   string    `json:"payment_id,omitempty"`
	ShowTime    time.Time `json:"show_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToBookingResponse maps the domain booking to its API shape
func ToBookingResponse(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		BookingRef:  b.BookingRef,
		UserID:      b.UserID,
		ShowID:      b.ShowID,
		TheatreID:   b.TheatreID,
		MovieID:     b.MovieID,
		SeatNumbers: b.SeatNumbers,
		TotalAmount: b.TotalAmount,
		Status:      string(b.Status),
		PaymentID:   b.PaymentID,
		ShowTime:    b.ShowTime,
		CreatedAt:   b.CreatedAt,
	}
}

// BookingListResponse is a paginated booking list
type BookingListResponse struct {
	Bookings []*BookingResponse `json:"bookings"`
	Total    int64              `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}
