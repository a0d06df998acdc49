package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgknoldus/movie-booking-sub000/internal/domain"
	"github.com/sgknoldus/movie-booking-sub000/internal/lock"
	"github.com/sgknoldus/movie-booking-sub000/internal/metrics"
	"github.com/sgknoldus/movie-booking-sub000/internal/payment"
	"github.com/sgknoldus/movie-booking-sub000/internal/repository"
)

// memStore is an in-memory implementation of the three repositories with
// transaction staging: Tx-suffixed writes apply only on Commit.
type memStore struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
	seats    map[string]map[string]domain.SeatStatus // showID -> seat -> status
	shows    map[string]*domain.Show
	outbox   []*domain.OutboxEvent

	createErr       error
	commitErr       error
	updateStatusErr error
}

func newMemStore() *memStore {
	return &memStore{
		bookings: make(map[string]*domain.Booking),
		seats:    make(map[string]map[string]domain.SeatStatus),
		shows:    make(map[string]*domain.Show),
	}
}

func (s *memStore) addShow(showID string, price float64, seats ...string) {
	s.shows[showID] = &domain.Show{
		ID: showID, TheatreID: "theatre-1", MovieID: "movie-1",
		ShowTime: time.Now().Add(24 * time.Hour), SeatPrice: price,
	}
	m := make(map[string]domain.SeatStatus)
	for _, seat := range seats {
		m[seat] = domain.SeatStatusAvailable
	}
	s.seats[showID] = m
}

type memTx struct {
	store     *memStore
	staged    []func()
	committed bool
}

func (t *memTx) Commit(ctx context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	for _, f := range t.staged {
		f()
	}
	t.committed = true
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.staged = nil
	return nil
}

func (s *memStore) BeginTx(ctx context.Context) (repository.Tx, error) {
	return &memTx{store: s}, nil
}

func (s *memStore) Create(ctx context.Context, b *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	clone := *b
	s.bookings[b.ID] = &clone
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	clone := *b
	return &clone, nil
}

func (s *memStore) GetByRef(ctx context.Context, ref string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.BookingRef == ref {
			clone := *b
			return &clone, nil
		}
	}
	return nil, domain.ErrBookingNotFound
}

func (s *memStore) GetByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			clone := *b
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateStatusErr != nil {
		return s.updateStatusErr
	}
	b, ok := s.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.Status = status
	return nil
}

func (s *memStore) UpdateStatusTx(ctx context.Context, tx repository.Tx, id string, status domain.BookingStatus) error {
	mt := tx.(*memTx)
	mt.staged = append(mt.staged, func() {
		if b, ok := s.bookings[id]; ok {
			b.Status = status
		}
	})
	return nil
}

func (s *memStore) ConfirmTx(ctx context.Context, tx repository.Tx, b *domain.Booking) error {
	mt := tx.(*memTx)
	clone := *b
	mt.staged = append(mt.staged, func() {
		s.bookings[b.ID] = &clone
	})
	return nil
}

func (s *memStore) CreateTx(ctx context.Context, tx repository.Tx, evt *domain.OutboxEvent) error {
	mt := tx.(*memTx)
	mt.staged = append(mt.staged, func() {
		s.outbox = append(s.outbox, evt)
	})
	return nil
}

func (s *memStore) GetPendingEventsTx(ctx context.Context, tx repository.Tx, limit int) ([]*domain.OutboxEvent, error) {
	return nil, nil
}

func (s *memStore) GetRetryableEventsTx(ctx context.Context, tx repository.Tx, limit, maxRetries int, backoff time.Duration) ([]*domain.OutboxEvent, error) {
	return nil, nil
}

func (s *memStore) MarkProcessedTx(ctx context.Context, tx repository.Tx, id string) error {
	return nil
}

func (s *memStore) MarkFailedTx(ctx context.Context, tx repository.Tx, id, errMsg string) error {
	return nil
}

func (s *memStore) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *memStore) GetShow(ctx context.Context, showID string) (*domain.Show, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	show, ok := s.shows[showID]
	if !ok {
		return nil, domain.ErrShowNotFound
	}
	return show, nil
}

func (s *memStore) CheckAvailability(ctx context.Context, showID string, seats []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var unavailable []string
	for _, seat := range seats {
		if s.seats[showID][seat] != domain.SeatStatusAvailable {
			unavailable = append(unavailable, seat)
		}
	}
	return unavailable, nil
}

func (s *memStore) MarkBookedTx(ctx context.Context, tx repository.Tx, showID string, seats []string, bookingID string) error {
	s.mu.Lock()
	for _, seat := range seats {
		if s.seats[showID][seat] != domain.SeatStatusAvailable {
			s.mu.Unlock()
			return repository.ErrSeatsTaken
		}
	}
	s.mu.Unlock()
	mt := tx.(*memTx)
	mt.staged = append(mt.staged, func() {
		for _, seat := range seats {
			s.seats[showID][seat] = domain.SeatStatusBooked
		}
	})
	return nil
}

func (s *memStore) ReleaseSeatsTx(ctx context.Context, tx repository.Tx, showID string, seats []string, bookingID string) error {
	mt := tx.(*memTx)
	mt.staged = append(mt.staged, func() {
		for _, seat := range seats {
			s.seats[showID][seat] = domain.SeatStatusAvailable
		}
	})
	return nil
}

func (s *memStore) seatStatus(showID, seat string) domain.SeatStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seats[showID][seat]
}

func (s *memStore) bookingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings)
}

func (s *memStore) outboxEvents() []*domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.OutboxEvent(nil), s.outbox...)
}

// memLockManager mimics the Redis lock: exclusive holders, polling acquire
type memLockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLockManager() *memLockManager {
	return &memLockManager{held: make(map[string]bool)}
}

type memLock struct {
	m   *memLockManager
	key string
}

func (l *memLock) Release(ctx context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	delete(l.m.held, l.key)
	return nil
}

func (m *memLockManager) Acquire(ctx context.Context, key string, waitTimeout, leaseTime time.Duration) (Lock, error) {
	deadline := time.Now().Add(waitTimeout)
	for {
		m.mu.Lock()
		if !m.held[key] {
			m.held[key] = true
			m.mu.Unlock()
			return &memLock{m: m, key: key}, nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, lock.ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (m *memLockManager) heldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// fakePayment returns scripted results and counts calls
type fakePayment struct {
	mu     sync.Mutex
	calls  int
	result *payment.Result
	err    error
}

func (p *fakePayment) Charge(ctx context.Context, bookingRef, userID string, amount float64) (*payment.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *fakePayment) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testConfig() *Config {
	return &Config{LockWaitTimeout: 100 * time.Millisecond, LockLeaseTime: time.Minute}
}

func newTestService(store *memStore, locks LockManager, pay payment.Client) *BookingService {
	return NewBookingService(store, store, store, locks, pay, testConfig(), nil)
}

func TestBookTicketsSuccess(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1", "A2", "A3")
	locks := newMemLockManager()
	pay := &fakePayment{result: &payment.Result{Status: payment.StatusSuccess, PaymentID: "pay-1"}}
	svc := newTestService(store, locks, pay)

	booking, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1", "A2"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, "pay-1", booking.PaymentID)
	assert.Equal(t, 500.0, booking.TotalAmount)

	// seats flipped, lock released
	assert.Equal(t, domain.SeatStatusBooked, store.seatStatus("show-1", "A1"))
	assert.Equal(t, domain.SeatStatusBooked, store.seatStatus("show-1", "A2"))
	assert.Equal(t, domain.SeatStatusAvailable, store.seatStatus("show-1", "A3"))
	assert.Equal(t, 0, locks.heldCount())

	// exactly one PENDING outbox event staged with the confirmation
	events := store.outboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.OutboxStatusPending, events[0].Status)
	assert.Equal(t, domain.EventTypeBookingConfirmed, events[0].EventType)
	assert.Equal(t, "BOOKING-"+booking.ID, events[0].PartitionKey())
}

func TestBookTicketsWithMetricsWired(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1")
	locks := newMemLockManager()
	pay := &fakePayment{result: &payment.Result{Status: payment.StatusSuccess, PaymentID: "pay-1"}}

	// global meter is a noop here; the instruments must still be safe to use
	m, err := metrics.New()
	require.NoError(t, err)
	svc := NewBookingService(store, store, store, locks, pay, testConfig(), m)

	booking, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
}

func TestBookTicketsLockBusy(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1")
	locks := newMemLockManager()
	pay := &fakePayment{result: &payment.Result{Status: payment.StatusSuccess, PaymentID: "pay-1"}}
	svc := newTestService(store, locks, pay)

	// another booking holds the lock for the whole wait window
	key := lock.SeatLockKey("show-1", []string{"A1"})
	held, err := locks.Acquire(context.Background(), key, time.Second, time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	_, err = svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1"},
	})

	be, ok := domain.AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindResourceBusy, be.Kind)

	// zero side effects
	assert.Equal(t, 0, store.bookingCount())
	assert.Empty(t, store.outboxEvents())
	assert.Equal(t, 0, pay.callCount())
	assert.Equal(t, domain.SeatStatusAvailable, store.seatStatus("show-1", "A1"))
}

func TestBookTicketsSeatsUnavailable(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1", "A2")
	store.seats["show-1"]["A2"] = domain.SeatStatusBooked
	locks := newMemLockManager()
	pay := &fakePayment{result: &payment.Result{Status: payment.StatusSuccess, PaymentID: "pay-1"}}
	svc := newTestService(store, locks, pay)

	_, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1", "A2"},
	})

	be, ok := domain.AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindSeatsUnavailable, be.Kind)
	assert.Equal(t, []string{"A2"}, be.UnavailableSeats)

	// no booking, no charge, lock released
	assert.Equal(t, 0, store.bookingCount())
	assert.Equal(t, 0, pay.callCount())
	assert.Equal(t, 0, locks.heldCount())
}

func TestBookTicketsPaymentDeclined(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1")
	locks := newMemLockManager()
	pay := &fakePayment{result: &payment.Result{Status: payment.StatusFailed, Message: "card declined"}}
	svc := newTestService(store, locks, pay)

	booking, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1"},
	})

	be, ok := domain.AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindPaymentFailed, be.Kind)

	// the booking survives as PAYMENT_FAILED for audit
	require.NotNil(t, booking)
	stored, getErr := store.GetByID(context.Background(), booking.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.BookingStatusPaymentFailed, stored.Status)

	// no event, seats untouched, lock released
	assert.Empty(t, store.outboxEvents())
	assert.Equal(t, domain.SeatStatusAvailable, store.seatStatus("show-1", "A1"))
	assert.Equal(t, 0, locks.heldCount())
}

func TestBookTicketsPaymentFailedStatusWriteSurfaced(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1")
	store.updateStatusErr = errors.New("connection reset")
	locks := newMemLockManager()
	pay := &fakePayment{result: &payment.Result{Status: payment.StatusFailed, Message: "card declined"}}
	svc := newTestService(store, locks, pay)

	booking, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1"},
	})

	// the stored row is still PENDING, so the failure is a persistence
	// error, not a payment result
	be, ok := domain.AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindPersistence, be.Kind)
	assert.Nil(t, booking)

	assert.Empty(t, store.outboxEvents())
	assert.Equal(t, 0, locks.heldCount())
}

func TestBookTicketsPaymentTransportError(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1")
	locks := newMemLockManager()
	pay := &fakePayment{err: errors.New("gateway unreachable")}
	svc := newTestService(store, locks, pay)

	_, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1"},
	})

	be, ok := domain.AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindPaymentFailed, be.Kind)
	assert.Empty(t, store.outboxEvents())
	assert.Equal(t, 0, locks.heldCount())
}

func TestBookTicketsPersistenceErrorReleasesLock(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1")
	store.commitErr = errors.New("connection reset")
	locks := newMemLockManager()
	pay := &fakePayment{result: &payment.Result{Status: payment.StatusSuccess, PaymentID: "pay-1"}}
	svc := newTestService(store, locks, pay)

	_, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1"},
	})

	be, ok := domain.AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindPersistence, be.Kind)

	// nothing committed, lock still released
	assert.Empty(t, store.outboxEvents())
	assert.Equal(t, domain.SeatStatusAvailable, store.seatStatus("show-1", "A1"))
	assert.Equal(t, 0, locks.heldCount())
}

func TestBookTicketsCreateErrorSkipsPayment(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1")
	store.createErr = errors.New("insert failed")
	locks := newMemLockManager()
	pay := &fakePayment{result: &payment.Result{Status: payment.StatusSuccess, PaymentID: "pay-1"}}
	svc := newTestService(store, locks, pay)

	_, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1"},
	})

	be, ok := domain.AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindPersistence, be.Kind)
	assert.Equal(t, 0, pay.callCount())
	assert.Equal(t, 0, locks.heldCount())
}

func TestBookTicketsShowNotFound(t *testing.T) {
	store := newMemStore()
	locks := newMemLockManager()
	pay := &fakePayment{}
	svc := newTestService(store, locks, pay)

	_, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
		UserID: "user-1", ShowID: "no-show", SeatNumbers: []string{"A1"},
	})

	be, ok := domain.AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindNotFound, be.Kind)
}

func TestBookTicketsConcurrentOneWinner(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1", "A2")
	locks := newMemLockManager()
	pay := &fakePayment{result: &payment.Result{Status: payment.StatusSuccess, PaymentID: "pay-1"}}

	cfg := &Config{LockWaitTimeout: 2 * time.Second, LockLeaseTime: time.Minute}
	svc := NewBookingService(store, store, store, locks, pay, cfg, nil)

	const n = 10
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.BookTickets(context.Background(), &BookTicketsRequest{
				UserID: "user-1", ShowID: "show-1", SeatNumbers: []string{"A1", "A2"},
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for _, err := range results {
		if err == nil {
			confirmed++
			continue
		}
		be, ok := domain.AsBookingError(err)
		require.True(t, ok, "unexpected error type: %v", err)
		assert.Contains(t, []domain.ErrorKind{domain.ErrKindSeatsUnavailable, domain.ErrKindResourceBusy}, be.Kind)
	}

	assert.Equal(t, 1, confirmed, "exactly one booking must win the seats")
	assert.Len(t, store.outboxEvents(), 1)
	assert.Equal(t, domain.SeatStatusBooked, store.seatStatus("show-1", "A1"))
	assert.Equal(t, 0, locks.heldCount())
}

func TestGetBookingScopedToOwner(t *testing.T) {
	store := newMemStore()
	b := domain.NewBooking("user-1", "show-1", "theatre-1", "movie-1", []string{"A1"}, 250.0, time.Now())
	require.NoError(t, store.Create(context.Background(), b))

	svc := newTestService(store, newMemLockManager(), &fakePayment{})

	found, err := svc.GetBooking(context.Background(), b.BookingRef, "user-1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, found.ID)

	_, err = svc.GetBooking(context.Background(), b.BookingRef, "user-2")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestCancelBooking(t *testing.T) {
	store := newMemStore()
	store.addShow("show-1", 250.0, "A1")
	store.seats["show-1"]["A1"] = domain.SeatStatusBooked
	b := domain.NewBooking("user-1", "show-1", "theatre-1", "movie-1", []string{"A1"}, 250.0, time.Now())
	require.NoError(t, store.Create(context.Background(), b))

	svc := newTestService(store, newMemLockManager(), &fakePayment{})

	cancelled, err := svc.CancelBooking(context.Background(), b.BookingRef, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)

	stored, _ := store.GetByID(context.Background(), b.ID)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	assert.Equal(t, domain.SeatStatusAvailable, store.seatStatus("show-1", "A1"))

	events := store.outboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeBookingCancelled, events[0].EventType)
}

func TestCancelConfirmedBookingRejected(t *testing.T) {
	store := newMemStore()
	b := domain.NewBooking("user-1", "show-1", "theatre-1", "movie-1", []string{"A1"}, 250.0, time.Now())
	require.NoError(t, b.Confirm("pay-1"))
	require.NoError(t, store.Create(context.Background(), b))

	svc := newTestService(store, newMemLockManager(), &fakePayment{})

	_, err := svc.CancelBooking(context.Background(), b.BookingRef, "user-1")
	be, ok := domain.AsBookingError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrKindInvalidState, be.Kind)
	assert.Empty(t, store.outboxEvents())
}
