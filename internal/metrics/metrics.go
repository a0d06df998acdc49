package metrics

import (
	"github.com/sgknoldus/movie-booking-sub000/pkg/telemetry"
)

// Metrics holds the service's instruments. All counters share the global
// meter, so a noop meter provider (telemetry disabled) makes them free.
type Metrics struct {
	BookingsTotal          *telemetry.Counter
	BookingsInFlight       *telemetry.UpDownCounter
	BookingDuration        *telemetry.Histogram
	LockWaitDuration       *telemetry.Histogram
	OutboxDispatchedTotal  *telemetry.Counter
	OutboxFailedTotal      *telemetry.Counter
	OutboxRetriesExhausted *telemetry.Counter
	OutboxCleanedTotal     *telemetry.Counter
}

// New creates all instruments. Attribute "result" distinguishes
// confirmed/busy/unavailable/payment_failed/error on BookingsTotal.
func New() (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.BookingsTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_total",
		Description: "Booking attempts by result",
		Unit:        "1",
	}); err != nil {
		return nil, err
	}
	if m.BookingsInFlight, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "bookings_in_flight",
		Description: "Booking flows currently executing",
		Unit:        "1",
	}); err != nil {
		return nil, err
	}
	if m.BookingDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "booking_duration_seconds",
		Description: "End-to-end booking flow duration",
		Unit:        "s",
	}); err != nil {
		return nil, err
	}
	if m.LockWaitDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "booking_lock_wait_seconds",
		Description: "Time spent waiting for the seat lock",
		Unit:        "s",
	}); err != nil {
		return nil, err
	}
	if m.OutboxDispatchedTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "outbox_dispatched_total",
		Description: "Outbox events successfully published",
		Unit:        "1",
	}); err != nil {
		return nil, err
	}
	if m.OutboxFailedTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "outbox_failed_total",
		Description: "Outbox publish failures",
		Unit:        "1",
	}); err != nil {
		return nil, err
	}
	if m.OutboxRetriesExhausted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "outbox_retries_exhausted_total",
		Description: "Outbox events that hit the retry ceiling and need manual intervention",
		Unit:        "1",
	}); err != nil {
		return nil, err
	}
	if m.OutboxCleanedTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "outbox_cleaned_total",
		Description: "Processed outbox events removed by retention cleanup",
		Unit:        "1",
	}); err != nil {
		return nil, err
	}
	return m, nil
}
