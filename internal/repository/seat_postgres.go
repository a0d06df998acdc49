package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgknoldus/movie-booking-sub000/internal/domain"
)

// ErrSeatsTaken is returned by MarkBookedTx when a seat changed state
// between the availability check and the booked update
var ErrSeatsTaken = errors.New("one or more seats are no longer available")

// SeatPostgresRepository is the pgx-backed seat availability store
type SeatPostgresRepository struct {
	pool *pgxpool.Pool
}

// NewSeatRepository creates a seat repository backed by Postgres
func NewSeatRepository(pool *pgxpool.Pool) *SeatPostgresRepository {
	return &SeatPostgresRepository{pool: pool}
}

func (r *SeatPostgresRepository) GetShow(ctx context.Context, showID string) (*domain.Show, error) {
	s := &domain.Show{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, theatre_id, movie_id, show_time, seat_price
		 FROM shows WHERE id = $1`, showID).
		Scan(&s.ID, &s.TheatreID, &s.MovieID, &s.ShowTime, &s.SeatPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrShowNotFound
		}
		return nil, fmt.Errorf("get show %s: %w", showID, err)
	}
	return s, nil
}

// CheckAvailability returns the seats that cannot be booked: seats in a
// non-AVAILABLE state plus requested seat numbers that do not exist for the
// show.
func (r *SeatPostgresRepository) CheckAvailability(ctx context.Context, showID string, seats []string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT seat_number, status FROM seat_availability
		 WHERE show_id = $1 AND seat_number = ANY($2)`,
		showID, seats)
	if err != nil {
		return nil, fmt.Errorf("check seat availability for show %s: %w", showID, err)
	}
	defer rows.Close()

	found := make(map[string]domain.SeatStatus, len(seats))
	for rows.Next() {
		var seat string
		var status domain.SeatStatus
		if err := rows.Scan(&seat, &status); err != nil {
			return nil, fmt.Errorf("scan seat availability: %w", err)
		}
		found[seat] = status
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var unavailable []string
	for _, seat := range seats {
		status, ok := found[seat]
		if !ok || status != domain.SeatStatusAvailable {
			unavailable = append(unavailable, seat)
		}
	}
	return unavailable, nil
}

// MarkBookedTx flips the seats to BOOKED, guarded on status so a seat booked
// by a racing request (e.g. after a lock lease expired) fails the whole
// transaction instead of double-selling.
func (r *SeatPostgresRepository) MarkBookedTx(ctx context.Context, tx Tx, showID string, seats []string, bookingID string) error {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	tag, err := ptx.Exec(ctx,
		`UPDATE seat_availability
		 SET status = $1, booking_id = $2, updated_at = NOW()
		 WHERE show_id = $3 AND seat_number = ANY($4) AND status = $5`,
		domain.SeatStatusBooked, bookingID, showID, seats, domain.SeatStatusAvailable)
	if err != nil {
		return fmt.Errorf("mark seats booked for show %s: %w", showID, err)
	}
	if tag.RowsAffected() != int64(len(seats)) {
		return fmt.Errorf("show %s: wanted %d seats, booked %d: %w",
			showID, len(seats), tag.RowsAffected(), ErrSeatsTaken)
	}
	return nil
}

func (r *SeatPostgresRepository) ReleaseSeatsTx(ctx context.Context, tx Tx, showID string, seats []string, bookingID string) error {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	_, err = ptx.Exec(ctx,
		`UPDATE seat_availability
		 SET status = $1, booking_id = NULL, updated_at = NOW()
		 WHERE show_id = $2 AND seat_number = ANY($3) AND booking_id = $4`,
		domain.SeatStatusAvailable, showID, seats, bookingID)
	if err != nil {
		return fmt.Errorf("release seats for show %s: %w", showID, err)
	}
	return nil
}
