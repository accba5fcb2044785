package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iyhunko/products-crud/internal/metrics"
	"github.com/iyhunko/products-crud/internal/model"
	"github.com/iyhunko/products-crud/internal/repository"
	"github.com/iyhunko/products-crud/internal/sqs"
)

const outboxBatchSize = 100

// MessagePublisher sends product messages to the notification queue.
type MessagePublisher interface {
	PublishProductMessage(ctx context.Context, msg sqs.ProductMessage) error
}

// OutboxWorker polls the events table and processes pending events
type OutboxWorker struct {
	eventRepo repository.EventRepository
	publisher MessagePublisher
	interval  time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewOutboxWorker creates a new OutboxWorker
func NewOutboxWorker(eventRepo repository.EventRepository, publisher MessagePublisher, interval time.Duration) *OutboxWorker {
	return &OutboxWorker{
		eventRepo: eventRepo,
		publisher: publisher,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins processing events from the outbox. It blocks until ctx is
// cancelled or Stop is called.
func (w *OutboxWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker stopped by context")
			return
		case <-w.stopChan:
			slog.Info("Outbox worker stopped")
			return
		case <-ticker.C:
			w.ProcessEvents(ctx)
		}
	}
}

// Stop stops the outbox worker. It is safe to call more than once.
func (w *OutboxWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
}

// ProcessEvents publishes one batch of pending events and records the outcome of each.
func (w *OutboxWorker) ProcessEvents(ctx context.Context) {
	query := repository.NewQuery().
		With(repository.StatusField, string(model.EventStatusPending)).
		WithLimit(outboxBatchSize)

	events, err := w.eventRepo.List(ctx, *query)
	if err != nil {
		slog.Error("Failed to retrieve pending events", slog.Any("err", err))
		return
	}

	if len(events) == 0 {
		return
	}

	slog.Info("Processing pending events", slog.Int("count", len(events)))

	for _, event := range events {
		status := model.EventStatusProcessed
		if err := w.processEvent(ctx, event); err != nil {
			slog.Error("Failed to process event",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.EventType),
				slog.Any("err", err))
			status = model.EventStatusFailed
		}

		if err := w.eventRepo.UpdateStatus(ctx, event.ID, status); err != nil {
			slog.Error("Failed to update event status",
				slog.String("event_id", event.ID.String()),
				slog.String("status", string(status)),
				slog.Any("err", err))
			continue
		}

		metrics.OutboxEvents.WithLabelValues(string(status)).Inc()
		slog.Debug("Event handled",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.EventType),
			slog.String("status", string(status)))
	}
}

// processEvent publishes a single event to SQS
func (w *OutboxWorker) processEvent(ctx context.Context, event *model.Event) error {
	var productMsg sqs.ProductMessage
	if err := json.Unmarshal(event.EventData, &productMsg); err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}

	return w.publisher.PublishProductMessage(ctx, productMsg)
}
