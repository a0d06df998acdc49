package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgknoldus/movie-booking-sub000/internal/domain"
)

const bookingColumns = `id, booking_ref, user_id, show_id, theatre_id, movie_id,
	seat_numbers, total_amount, status, COALESCE(payment_id, ''), show_time, created_at, updated_at`

// BookingPostgresRepository is the pgx-backed booking store
type BookingPostgresRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository creates a booking repository backed by Postgres
func NewBookingRepository(pool *pgxpool.Pool) *BookingPostgresRepository {
	return &BookingPostgresRepository{pool: pool}
}

func (r *BookingPostgresRepository) BeginTx(ctx context.Context) (Tx, error) {
	return beginPgxTx(ctx, r.pool)
}

func (r *BookingPostgresRepository) Create(ctx context.Context, b *domain.Booking) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bookings (id, booking_ref, user_id, show_id, theatre_id, movie_id,
			seat_numbers, total_amount, status, show_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.BookingRef, b.UserID, b.ShowID, b.TheatreID, b.MovieID,
		b.SeatNumbers, b.TotalAmount, b.Status, b.ShowTime, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert booking %s: %w", b.BookingRef, err)
	}
	return nil
}

func (r *BookingPostgresRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (r *BookingPostgresRepository) GetByRef(ctx context.Context, ref string) (*domain.Booking, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_ref = $1`, ref)
	return scanBooking(row)
}

func (r *BookingPostgresRepository) GetByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings for user %s: %w", userID, err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query bookings for user %s: %w", userID, err)
	}
	defer rows.Close()

	bookings := make([]*domain.Booking, 0, limit)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, b)
	}
	return bookings, total, rows.Err()
}

func (r *BookingPostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update booking %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (r *BookingPostgresRepository) UpdateStatusTx(ctx context.Context, tx Tx, id string, status domain.BookingStatus) error {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	tag, err := ptx.Exec(ctx,
		`UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update booking %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (r *BookingPostgresRepository) ConfirmTx(ctx context.Context, tx Tx, b *domain.Booking) error {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	tag, err := ptx.Exec(ctx,
		`UPDATE bookings
		 SET status = $1, payment_id = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		domain.BookingStatusConfirmed, b.PaymentID, b.UpdatedAt, b.ID, domain.BookingStatusPending)
	if err != nil {
		return fmt.Errorf("confirm booking %s: %w", b.BookingRef, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("confirm booking %s: %w", b.BookingRef, domain.ErrInvalidTransition)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	err := row.Scan(&b.ID, &b.BookingRef, &b.UserID, &b.ShowID, &b.TheatreID, &b.MovieID,
		&b.SeatNumbers, &b.TotalAmount, &b.Status, &b.PaymentID, &b.ShowTime,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	return b, nil
}
