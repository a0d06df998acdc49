package repository

import (
	"context"
	"time"

	"github.com/sgknoldus/movie-booking-sub000/internal/domain"
)

// Tx is a storage transaction handle. Repository methods suffixed Tx run
// inside it; the caller owns commit/rollback.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BookingRepository persists bookings
type BookingRepository interface {
	BeginTx(ctx context.Context) (Tx, error)
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByRef(ctx context.Context, ref string) (*domain.Booking, error)
	GetByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int64, error)
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error
	// ConfirmTx writes the CONFIRMED status and payment id inside tx, so it
	// commits atomically with the seat update and outbox insert
	ConfirmTx(ctx context.Context, tx Tx, b *domain.Booking) error
	UpdateStatusTx(ctx context.Context, tx Tx, id string, status domain.BookingStatus) error
}

// OutboxRepository persists and drains the transactional outbox
type OutboxRepository interface {
	BeginTx(ctx context.Context) (Tx, error)
	CreateTx(ctx context.Context, tx Tx, evt *domain.OutboxEvent) error
	// GetPendingEventsTx fetches PENDING events oldest first, row-locked with
	// SKIP LOCKED so concurrent dispatcher replicas drain disjoint batches
	GetPendingEventsTx(ctx context.Context, tx Tx, limit int) ([]*domain.OutboxEvent, error)
	// GetRetryableEventsTx fetches FAILED events under the retry ceiling that
	// have aged past the backoff window
	GetRetryableEventsTx(ctx context.Context, tx Tx, limit, maxRetries int, backoff time.Duration) ([]*domain.OutboxEvent, error)
	MarkProcessedTx(ctx context.Context, tx Tx, id string) error
	MarkFailedTx(ctx context.Context, tx Tx, id, errMsg string) error
	// DeleteProcessedBefore removes PROCESSED events older than cutoff and
	// returns the number deleted
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SeatRepository reads and mutates per-show seat availability
type SeatRepository interface {
	GetShow(ctx context.Context, showID string) (*domain.Show, error)
	// CheckAvailability returns the subset of seats that are NOT bookable
	CheckAvailability(ctx context.Context, showID string, seats []string) ([]string, error)
	// MarkBookedTx flips seats to BOOKED inside tx, conditional on each seat
	// still being AVAILABLE; it fails if any seat was taken since the check
	MarkBookedTx(ctx context.Context, tx Tx, showID string, seats []string, bookingID string) error
	// ReleaseSeatsTx returns a cancelled booking's seats to AVAILABLE
	ReleaseSeatsTx(ctx context.Context, tx Tx, showID string, seats []string, bookingID string) error
}
