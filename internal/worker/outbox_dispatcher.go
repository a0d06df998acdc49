package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sgknoldus/movie-booking-sub000/internal/domain"
	"github.com/sgknoldus/movie-booking-sub000/internal/metrics"
	"github.com/sgknoldus/movie-booking-sub000/internal/repository"
	"github.com/sgknoldus/movie-booking-sub000/pkg/kafka"
	"github.com/sgknoldus/movie-booking-sub000/pkg/logger"
)

// EventPublisher publishes one outbox record to the broker
type EventPublisher interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// Config holds dispatcher loop timings and limits
type Config struct {
	// Topic all booking events are published to
	Topic string
	// DispatchInterval is the PENDING drain cadence
	DispatchInterval time.Duration
	// RetryInterval is the FAILED sweep cadence
	RetryInterval time.Duration
	// CleanupInterval is the retention cleanup cadence
	CleanupInterval time.Duration
	// BatchSize bounds one drain
	BatchSize int
	// MaxRetries is the per-event publish ceiling
	MaxRetries int
	// RetryBackoff is how long a FAILED event rests before a retry sweep
	// picks it up
	RetryBackoff time.Duration
	// Retention is how long PROCESSED events are kept
	Retention time.Duration
}

// DefaultConfig returns the standard dispatcher timings
func DefaultConfig() *Config {
	return &Config{
		Topic:            "booking-events",
		DispatchInterval: 5 * time.Second,
		RetryInterval:    5 * time.Minute,
		CleanupInterval:  24 * time.Hour,
		BatchSize:        100,
		MaxRetries:       domain.OutboxMaxRetries,
		RetryBackoff:     time.Hour,
		Retention:        7 * 24 * time.Hour,
	}
}

// OutboxDispatcher drains the transactional outbox to Kafka. Three loops:
// the dispatch loop drains PENDING events, the retry loop re-attempts FAILED
// events under the ceiling, and the cleanup loop removes old PROCESSED rows.
// Delivery is at-least-once; consumers dedupe on the event id header.
type OutboxDispatcher struct {
	outbox    repository.OutboxRepository
	publisher EventPublisher
	cfg       *Config
	metrics   *metrics.Metrics
	log       *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewOutboxDispatcher wires the dispatcher
func NewOutboxDispatcher(outbox repository.OutboxRepository, publisher EventPublisher, cfg *Config, m *metrics.Metrics) *OutboxDispatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &OutboxDispatcher{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		log:       logger.Get().With("component", "outbox_dispatcher"),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the three loops
func (d *OutboxDispatcher) Start() {
	d.log.Info("outbox dispatcher starting",
		"dispatch_interval", d.cfg.DispatchInterval,
		"retry_interval", d.cfg.RetryInterval,
		"batch_size", d.cfg.BatchSize)

	d.wg.Add(3)
	go d.loop(d.cfg.DispatchInterval, d.dispatchPending)
	go d.loop(d.cfg.RetryInterval, d.retryFailed)
	go d.loop(d.cfg.CleanupInterval, d.cleanup)
}

// Stop signals the loops and waits for in-flight batches to finish
func (d *OutboxDispatcher) Stop() {
	d.once.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	d.log.Info("outbox dispatcher stopped")
}

func (d *OutboxDispatcher) loop(interval time.Duration, tick func(ctx context.Context)) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			tick(ctx)
			cancel()
		}
	}
}

// dispatchPending drains one batch of PENDING events. The batch is
// row-locked with SKIP LOCKED inside the transaction, so replicas never
// double-drain the same rows.
func (d *OutboxDispatcher) dispatchPending(ctx context.Context) {
	tx, err := d.outbox.BeginTx(ctx)
	if err != nil {
		d.log.Error("dispatch: begin tx failed", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	events, err := d.outbox.GetPendingEventsTx(ctx, tx, d.cfg.BatchSize)
	if err != nil {
		d.log.Error("dispatch: fetch pending failed", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	d.publishBatch(ctx, tx, events)

	if err := tx.Commit(ctx); err != nil {
		d.log.Error("dispatch: commit failed, batch will be re-dispatched", "error", err)
	}
}

// retryFailed re-attempts FAILED events that aged past the backoff window
// and are still under the retry ceiling
func (d *OutboxDispatcher) retryFailed(ctx context.Context) {
	tx, err := d.outbox.BeginTx(ctx)
	if err != nil {
		d.log.Error("retry: begin tx failed", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	events, err := d.outbox.GetRetryableEventsTx(ctx, tx, d.cfg.BatchSize, d.cfg.MaxRetries, d.cfg.RetryBackoff)
	if err != nil {
		d.log.Error("retry: fetch failed events failed", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	d.log.Info("retrying failed outbox events", "count", len(events))
	d.publishBatch(ctx, tx, events)

	if err := tx.Commit(ctx); err != nil {
		d.log.Error("retry: commit failed", "error", err)
	}
}

func (d *OutboxDispatcher) publishBatch(ctx context.Context, tx repository.Tx, events []*domain.OutboxEvent) {
	for _, evt := range events {
		if err := d.publishEvent(ctx, evt); err != nil {
			d.handlePublishFailure(ctx, tx, evt, err)
			continue
		}
		if err := d.outbox.MarkProcessedTx(ctx, tx, evt.ID); err != nil {
			d.log.Error("mark processed failed, event will be re-published",
				"event_id", evt.ID, "error", err)
			continue
		}
		if d.metrics != nil {
			d.metrics.OutboxDispatchedTotal.Add(ctx, 1)
		}
	}
}

func (d *OutboxDispatcher) publishEvent(ctx context.Context, evt *domain.OutboxEvent) error {
	return d.publisher.Produce(ctx, &kafka.Message{
		Topic: d.cfg.Topic,
		Key:   []byte(evt.PartitionKey()),
		Value: evt.Payload,
		Headers: map[string]string{
			"event_id":       evt.ID,
			"event_type":     evt.EventType,
			"aggregate_type": evt.AggregateType,
			"aggregate_id":   evt.AggregateID,
		},
		Timestamp: evt.CreatedAt,
	})
}

func (d *OutboxDispatcher) handlePublishFailure(ctx context.Context, tx repository.Tx, evt *domain.OutboxEvent, pubErr error) {
	if err := d.outbox.MarkFailedTx(ctx, tx, evt.ID, pubErr.Error()); err != nil {
		d.log.Error("mark failed failed", "event_id", evt.ID, "error", err)
		return
	}
	if d.metrics != nil {
		d.metrics.OutboxFailedTotal.Add(ctx, 1)
	}

	// evt.RetryCount is the count before this failure
	if evt.RetryCount+1 >= d.cfg.MaxRetries {
		d.log.Error("outbox event exhausted retries, manual intervention required",
			"event_id", evt.ID,
			"event_type", evt.EventType,
			"aggregate_id", evt.AggregateID,
			"retry_count", evt.RetryCount+1,
			"error", pubErr)
		if d.metrics != nil {
			d.metrics.OutboxRetriesExhausted.Add(ctx, 1)
		}
		return
	}

	d.log.Warn("outbox publish failed, will retry",
		"event_id", evt.ID, "retry_count", evt.RetryCount+1, "error", pubErr)
}

// cleanup removes PROCESSED events older than the retention window
func (d *OutboxDispatcher) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-d.cfg.Retention)
	deleted, err := d.outbox.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		d.log.Error("cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		d.log.Info("outbox cleanup removed processed events",
			"deleted", deleted, "cutoff", cutoff)
		if d.metrics != nil {
			d.metrics.OutboxCleanedTotal.Add(ctx, deleted)
		}
	}
}
