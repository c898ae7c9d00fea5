package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

type outboxRepo interface {
	ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OutboxEventStatus) error
}

type eventPublisher interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
}

const defaultClaimTimeout = time.Minute

type DispatcherConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// ClaimTimeout is how long a claimed event may stay in processing
	// before another poll takes it again.
	ClaimTimeout time.Duration
}

// EventDispatcher relays statement events from the outbox to a publisher.
// An event whose publish fails goes back to pending until it has used
// MaxAttempts claims, then it is parked as failed. Events still held when
// the dispatcher is cancelled go back to pending without being parked.
type EventDispatcher struct {
	outbox    outboxRepo
	publisher eventPublisher
	logger    *slog.Logger
	cfg       DispatcherConfig
}

func NewEventDispatcher(outbox outboxRepo, publisher eventPublisher, logger *slog.Logger, cfg DispatcherConfig) *EventDispatcher {
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = defaultClaimTimeout
	}
	return &EventDispatcher{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
	}
}

func (d *EventDispatcher) Start(ctx context.Context) {
	d.logger.Info("event dispatcher started", "interval", d.cfg.Interval, "batch_size", d.cfg.BatchSize)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("event dispatcher stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *EventDispatcher) poll(ctx context.Context) int {
	events, err := d.outbox.ClaimPending(ctx, d.cfg.BatchSize, d.cfg.ClaimTimeout)
	if err != nil {
		d.logger.Error("failed to claim pending outbox events", "error", err)
		return 0
	}

	dispatched := 0
	for i, event := range events {
		if ctx.Err() != nil {
			d.release(ctx, events[i:])
			break
		}
		if err := d.dispatch(ctx, event); err != nil {
			d.logger.Error("failed to dispatch outbox event",
				"outbox_event_id", event.ID,
				"statement_id", event.StatementID,
				"error", err,
			)
			continue
		}
		dispatched++
	}
	return dispatched
}

// dispatch records the outcome with a context detached from cancellation,
// so a shutdown mid-publish still leaves the event claimable.
func (d *EventDispatcher) dispatch(ctx context.Context, event domain.OutboxEvent) error {
	statusCtx := context.WithoutCancel(ctx)

	if err := d.publisher.Publish(ctx, event); err != nil {
		next := domain.OutboxEventStatusPending
		if ctx.Err() == nil && event.Attempts >= d.cfg.MaxAttempts {
			next = domain.OutboxEventStatusFailed
		}
		if uerr := d.outbox.UpdateStatus(statusCtx, event.ID, next); uerr != nil {
			return fmt.Errorf("dispatch: publish: %v: update status: %w", err, uerr)
		}
		d.logger.Warn("outbox event publish failed",
			"outbox_event_id", event.ID,
			"attempts", event.Attempts,
			"next_status", next,
			"error", err,
		)
		return fmt.Errorf("dispatch: %w", err)
	}

	if err := d.outbox.UpdateStatus(statusCtx, event.ID, domain.OutboxEventStatusDispatched); err != nil {
		return fmt.Errorf("dispatch: mark dispatched: %w", err)
	}
	return nil
}

func (d *EventDispatcher) release(ctx context.Context, events []domain.OutboxEvent) {
	statusCtx := context.WithoutCancel(ctx)
	for _, event := range events {
		if err := d.outbox.UpdateStatus(statusCtx, event.ID, domain.OutboxEventStatusPending); err != nil {
			d.logger.Error("failed to release outbox event",
				"outbox_event_id", event.ID,
				"error", err,
			)
		}
	}
	d.logger.Info("released unsent outbox events", "count", len(events))
}

// LogPublisher stands in for a broker when none is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.OutboxEvent) error {
	p.logger.Info("statement event",
		"outbox_event_id", event.ID,
		"event_type", event.EventType,
		"user_id", event.UserID,
		"payload", string(event.Payload),
	)
	return nil
}
