package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sgknoldus/movie-booking-sub000/internal/domain"
	"github.com/sgknoldus/movie-booking-sub000/internal/lock"
	"github.com/sgknoldus/movie-booking-sub000/internal/metrics"
	"github.com/sgknoldus/movie-booking-sub000/internal/payment"
	"github.com/sgknoldus/movie-booking-sub000/internal/repository"
	"github.com/sgknoldus/movie-booking-sub000/pkg/logger"
	"github.com/sgknoldus/movie-booking-sub000/pkg/telemetry"
)

// Lock is a held seat lock
type Lock interface {
	Release(ctx context.Context) error
}

// LockManager acquires distributed seat locks
type LockManager interface {
	Acquire(ctx context.Context, key string, waitTimeout, leaseTime time.Duration) (Lock, error)
}

// redisLockManager adapts lock.Manager to the LockManager interface
type redisLockManager struct {
	m *lock.Manager
}

// NewRedisLockManager wraps the Redis lock manager for the booking service
func NewRedisLockManager(m *lock.Manager) LockManager {
	return &redisLockManager{m: m}
}

func (a *redisLockManager) Acquire(ctx context.Context, key string, waitTimeout, leaseTime time.Duration) (Lock, error) {
	l, err := a.m.Acquire(ctx, key, waitTimeout, leaseTime)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Config holds booking flow timings
type Config struct {
	// LockWaitTimeout is how long a request waits for a contended seat lock
	LockWaitTimeout time.Duration
	// LockLeaseTime is the lock auto-expiry, an upper bound on the flow
	LockLeaseTime time.Duration
}

// DefaultConfig returns default booking flow timings
func DefaultConfig() *Config {
	return &Config{
		LockWaitTimeout: 10 * time.Second,
		LockLeaseTime:   5 * time.Minute,
	}
}

// BookTicketsRequest is the input to the booking flow
type BookTicketsRequest struct {
	UserID      string
	ShowID      string
	SeatNumbers []string
}

// BookingService runs the seat booking flow: lock, availability check,
// pending persist, payment, then confirm + seats + outbox in one transaction.
// The lock is released on every path.
type BookingService struct {
	bookings repository.BookingRepository
	outbox   repository.OutboxRepository
	seats    repository.SeatRepository
	locks    LockManager
	payments payment.Client
	cfg      *Config
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewBookingService wires the booking coordinator
func NewBookingService(
	bookings repository.BookingRepository,
	outbox repository.OutboxRepository,
	seats repository.SeatRepository,
	locks LockManager,
	payments payment.Client,
	cfg *Config,
	m *metrics.Metrics,
) *BookingService {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &BookingService{
		bookings: bookings,
		outbox:   outbox,
		seats:    seats,
		locks:    locks,
		payments: payments,
		cfg:      cfg,
		metrics:  m,
		log:      logger.Get().With("component", "booking_service"),
	}
}

// BookTickets runs the full booking flow and returns the booking in its
// final state. Failures come back as *domain.BookingError so the transport
// layer can map them.
func (s *BookingService) BookTickets(ctx context.Context, req *BookTicketsRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingService.BookTickets")
	defer span.End()
	telemetry.SetSpanAttributes(ctx,
		attribute.String("booking.show_id", req.ShowID),
		attribute.Int("booking.seat_count", len(req.SeatNumbers)),
	)

	if s.metrics != nil {
		s.metrics.BookingsInFlight.Add(ctx, 1)
		defer s.metrics.BookingsInFlight.Add(ctx, -1)
	}

	start := time.Now()
	booking, err := s.bookTickets(ctx, req)
	s.observeBooking(ctx, start, err)
	if err != nil {
		telemetry.SetSpanError(ctx, err)
	}
	return booking, err
}

func (s *BookingService) bookTickets(ctx context.Context, req *BookTicketsRequest) (*domain.Booking, error) {
	if len(req.SeatNumbers) == 0 {
		return nil, &domain.BookingError{Kind: domain.ErrKindSeatsUnavailable, Message: "no seats requested"}
	}

	show, err := s.seats.GetShow(ctx, req.ShowID)
	if err != nil {
		if errors.Is(err, domain.ErrShowNotFound) {
			return nil, &domain.BookingError{Kind: domain.ErrKindNotFound, Message: "show not found", Err: err}
		}
		return nil, domain.NewPersistenceError("load show", err)
	}
	totalAmount := show.SeatPrice * float64(len(req.SeatNumbers))

	// Step 1: take the seat lock. Everything after this runs under it.
	lockKey := lock.SeatLockKey(req.ShowID, req.SeatNumbers)
	lockStart := time.Now()
	seatLock, err := s.locks.Acquire(ctx, lockKey, s.cfg.LockWaitTimeout, s.cfg.LockLeaseTime)
	if s.metrics != nil {
		s.metrics.LockWaitDuration.Record(ctx, time.Since(lockStart).Seconds())
	}
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.log.Warn("seat lock busy", "show_id", req.ShowID, "seats", req.SeatNumbers)
			return nil, domain.NewResourceBusyError(req.ShowID)
		}
		return nil, domain.NewPersistenceError("acquire seat lock", err)
	}
	defer func() {
		// Release must not inherit a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := seatLock.Release(releaseCtx); err != nil {
			s.log.Error("seat lock release failed, lease will expire it", "key", lockKey, "error", err)
		}
	}()

	// Step 2: availability check under the lock
	unavailable, err := s.seats.CheckAvailability(ctx, req.ShowID, req.SeatNumbers)
	if err != nil {
		return nil, domain.NewPersistenceError("check seat availability", err)
	}
	if len(unavailable) > 0 {
		return nil, domain.NewSeatsUnavailableError(unavailable)
	}

	// Step 3: persist PENDING before charging, so a crash during payment
	// leaves an auditable record instead of a silent charge
	booking := domain.NewBooking(req.UserID, req.ShowID, show.TheatreID, show.MovieID,
		req.SeatNumbers, totalAmount, show.ShowTime)
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, domain.NewPersistenceError("create pending booking", err)
	}

	s.log.Info("booking pending",
		"booking_ref", booking.BookingRef, "show_id", req.ShowID,
		"seats", req.SeatNumbers, "amount", totalAmount)

	// Step 4: charge. A single attempt; the user retries on failure.
	result, payErr := s.payments.Charge(ctx, booking.BookingRef, req.UserID, totalAmount)
	if payErr != nil || result.Status != payment.StatusSuccess {
		if err := booking.MarkPaymentFailed(); err != nil {
			return nil, domain.NewPersistenceError("mark payment failed", err)
		}
		if err := s.bookings.UpdateStatus(ctx, booking.ID, domain.BookingStatusPaymentFailed); err != nil {
			// The stored row would still read PENDING, so a PAYMENT_FAILED
			// response here would lie about the persisted state.
			s.log.Error("failed to persist PAYMENT_FAILED status",
				"booking_ref", booking.BookingRef, "error", err)
			return nil, domain.NewPersistenceError("persist payment failure", err)
		}
		if payErr == nil {
			payErr = fmt.Errorf("gateway declined: %s", result.Message)
		}
		s.log.Warn("payment failed", "booking_ref", booking.BookingRef, "error", payErr)
		return booking, domain.NewPaymentFailedError(booking.BookingRef, payErr)
	}

	// Step 5: confirm, mark seats and stage the event atomically
	if err := booking.Confirm(result.PaymentID); err != nil {
		return nil, domain.NewPersistenceError("confirm booking", err)
	}
	evt, err := domain.NewOutboxEvent(domain.AggregateTypeBooking, booking.ID,
		domain.EventTypeBookingConfirmed, domain.NewBookingConfirmedEvent(booking))
	if err != nil {
		return nil, domain.NewPersistenceError("build confirmed event", err)
	}

	if err := s.commitConfirmation(ctx, booking, evt); err != nil {
		return nil, err
	}

	s.log.Info("booking confirmed",
		"booking_ref", booking.BookingRef, "payment_id", result.PaymentID)
	return booking, nil
}

func (s *BookingService) commitConfirmation(ctx context.Context, booking *domain.Booking, evt *domain.OutboxEvent) error {
	tx, err := s.bookings.BeginTx(ctx)
	if err != nil {
		return domain.NewPersistenceError("begin confirm tx", err)
	}
	defer tx.Rollback(ctx)

	if err := s.bookings.ConfirmTx(ctx, tx, booking); err != nil {
		return domain.NewPersistenceError("confirm booking", err)
	}
	if err := s.seats.MarkBookedTx(ctx, tx, booking.ShowID, booking.SeatNumbers, booking.ID); err != nil {
		if errors.Is(err, repository.ErrSeatsTaken) {
			return domain.NewSeatsUnavailableError(booking.SeatNumbers)
		}
		return domain.NewPersistenceError("mark seats booked", err)
	}
	if err := s.outbox.CreateTx(ctx, tx, evt); err != nil {
		return domain.NewPersistenceError("stage outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.NewPersistenceError("commit confirmation", err)
	}
	return nil
}

// GetBooking loads a booking by reference, scoped to its owner
func (s *BookingService) GetBooking(ctx context.Context, bookingRef, userID string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByRef(ctx, bookingRef)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, domain.ErrBookingNotFound
	}
	return booking, nil
}

// GetUserBookings lists a user's bookings newest first
func (s *BookingService) GetUserBookings(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.GetByUser(ctx, userID, limit, offset)
}

// CancelBooking cancels a non-confirmed booking, returning its seats and
// staging a cancellation event in the same transaction
func (s *BookingService) CancelBooking(ctx context.Context, bookingRef, userID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingService.CancelBooking")
	defer span.End()

	booking, err := s.GetBooking(ctx, bookingRef, userID)
	if err != nil {
		return nil, err
	}
	if err := booking.Cancel(); err != nil {
		return nil, &domain.BookingError{
			Kind:    domain.ErrKindInvalidState,
			Message: fmt.Sprintf("booking %s cannot be cancelled in status %s", bookingRef, booking.Status),
			Err:     err,
		}
	}

	evt, err := domain.NewOutboxEvent(domain.AggregateTypeBooking, booking.ID,
		domain.EventTypeBookingCancelled, domain.NewBookingCancelledEvent(booking))
	if err != nil {
		return nil, domain.NewPersistenceError("build cancelled event", err)
	}

	tx, err := s.bookings.BeginTx(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("begin cancel tx", err)
	}
	defer tx.Rollback(ctx)

	if err := s.bookings.UpdateStatusTx(ctx, tx, booking.ID, domain.BookingStatusCancelled); err != nil {
		return nil, domain.NewPersistenceError("cancel booking", err)
	}
	if err := s.seats.ReleaseSeatsTx(ctx, tx, booking.ShowID, booking.SeatNumbers, booking.ID); err != nil {
		return nil, domain.NewPersistenceError("release seats", err)
	}
	if err := s.outbox.CreateTx(ctx, tx, evt); err != nil {
		return nil, domain.NewPersistenceError("stage outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.NewPersistenceError("commit cancellation", err)
	}

	s.log.Info("booking cancelled", "booking_ref", bookingRef)
	return booking, nil
}

func (s *BookingService) observeBooking(ctx context.Context, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := "confirmed"
	if err != nil {
		result = "error"
		if be, ok := domain.AsBookingError(err); ok {
			switch be.Kind {
			case domain.ErrKindResourceBusy:
				result = "busy"
			case domain.ErrKindSeatsUnavailable:
				result = "unavailable"
			case domain.ErrKindPaymentFailed:
				result = "payment_failed"
			}
		}
	}
	s.metrics.BookingsTotal.Add(ctx, 1, attribute.String("result", result))
	s.metrics.BookingDuration.Record(ctx, time.Since(start).Seconds(),
		attribute.String("result", result))
}
