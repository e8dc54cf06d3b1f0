// Package outbox implements the relay half of the outbox pattern:
// events written transactionally beside domain changes are picked up by
// a background worker and published to the bus.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/careforall/settlement/internal/bus"
	"github.com/careforall/settlement/internal/model"
	"github.com/careforall/settlement/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options tune one relay worker.
type Options struct {
	// BatchSize caps rows claimed per transaction.
	BatchSize int
	// Interval is the sleep between polls.
	Interval time.Duration
	// MaxAttempts quarantines an event after this many failed publishes
	// so one poison row cannot stall the batch forever.
	MaxAttempts int
}

// Relay is a long-lived worker. Multiple instances may run against the
// same outbox table: the claim query skips rows locked by a sibling, so
// each worker gets a disjoint batch. Delivery is at-least-once; a crash
// between publish and commit re-delivers, and consumers dedupe.
type Relay struct {
	repo repo.RepositoryInterface
	pub  bus.Publisher
	log  *zap.SugaredLogger
	opts Options

	stop chan struct{}
	done chan struct{}
}

func New(r repo.RepositoryInterface, publisher bus.Publisher, logger *zap.SugaredLogger, opts Options) *Relay {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	return &Relay{
		repo: r,
		pub:  publisher,
		log:  logger,
		opts: opts,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the poll loop in its own goroutine.
func (r *Relay) Start() {
	go r.run()
}

// Stop signals the loop and waits for the in-flight batch to finish.
func (r *Relay) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Relay) run() {
	defer close(r.done)
	r.log.Info("outbox relay started")
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.ProcessBatch(context.Background()); err != nil {
				r.log.Errorf("process outbox batch: %v", err)
			}
		}
	}
}

// ProcessBatch claims and publishes one batch inside a single database
// transaction. Rows are locked only for the publish+mark step, never
// across the sleep interval. Any failure rolls the whole batch back so
// the next poll retries it; the attempt counters of claimed rows are
// bumped outside the transaction so they survive the rollback.
func (r *Relay) ProcessBatch(ctx context.Context) error {
	var failed []uint64
	err := r.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		events, err := r.repo.ClaimOutboxBatch(ctx, tx, r.opts.BatchSize, r.opts.MaxAttempts)
		if err != nil {
			return err
		}
		for _, evt := range events {
			if err := r.publishOne(ctx, tx, evt); err != nil {
				failed = append(failed, evt.ID)
				return err
			}
		}
		return nil
	})
	if err != nil && len(failed) > 0 {
		if bumpErr := r.repo.BumpOutboxAttempts(ctx, failed); bumpErr != nil {
			r.log.Errorf("bump outbox attempts: %v", bumpErr)
		}
	}
	return err
}

func (r *Relay) publishOne(ctx context.Context, tx *gorm.DB, evt model.OutboxEvent) error {
	if err := r.pub.Publish(ctx, evt.EventType, []byte(evt.Payload)); err != nil {
		if evt.Attempts+1 >= r.opts.MaxAttempts {
			r.log.Errorf("quarantining outbox event %d (%s) after %d attempts: %v",
				evt.ID, evt.EventType, evt.Attempts+1, err)
		}
		return fmt.Errorf("publish event %d (%s): %w", evt.ID, evt.EventType, err)
	}
	if err := r.repo.MarkOutboxProcessed(ctx, tx, evt.ID); err != nil {
		return fmt.Errorf("mark event %d processed: %w", evt.ID, err)
	}
	r.log.Infof("published event: %s (%s/%s)", evt.EventType, evt.AggregateType, evt.AggregateID)
	return nil
}
