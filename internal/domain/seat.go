package domain

import "time"

// SeatStatus is the availability state of one seat for one show
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusBooked    SeatStatus = "BOOKED"
	SeatStatusLocked    SeatStatus = "LOCKED"
	SeatStatusBlocked   SeatStatus = "BLOCKED"
)

// SeatAvailability is one seat's state for one show
type SeatAvailability struct {
	ID         string     `json:"id" db:"id"`
	ShowID     string     `json:"show_id" db:"show_id"`
	SeatNumber string     `json:"seat_number" db:"seat_number"`
	Status     SeatStatus `json:"status" db:"status"`
	BookingID  *string    `json:"booking_id,omitempty" db:"booking_id"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsBookable reports whether the seat can be taken by a new booking
func (s *SeatAvailability) IsBookable() bool {
	return s.Status == SeatStatusAvailable
}

// Show carries the show-level data the booking flow needs: pricing and
// identity of the theatre and movie
type Show struct {
	ID        string    `json:"id" db:"id"`
	TheatreID string    `json:"theatre_id" db:"theatre_id"`
	MovieID   string    `json:"movie_id" db:"movie_id"`
	ShowTime  time.Time `json:"show_time" db:"show_time"`
	SeatPrice float64   `json:"seat_price" db:"seat_price"`
}
