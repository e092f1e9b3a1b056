package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deskflow/itsm-approvals/internal/events"
	"github.com/deskflow/itsm-approvals/internal/service"
)

// ErrQueueFull is returned when an event cannot be buffered.
var ErrQueueFull = errors.New("notification queue full")

// ErrWorkerStopped is returned by Publish after Stop.
var ErrWorkerStopped = errors.New("notification worker stopped")

// NotificationWorker is an asynchronous events.Dispatcher: Publish enqueues
// and a fixed set of goroutines fan events out to the inner dispatcher.
type NotificationWorker struct {
	inner   events.Dispatcher
	logger  *zap.Logger
	queue   chan events.Event
	workers int
	timeout time.Duration

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewNotificationWorker wraps inner with a bounded queue.
func NewNotificationWorker(inner events.Dispatcher, logger *zap.Logger, queueSize, workers int) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		inner:   inner,
		logger:  logger.Named("notification_worker"),
		queue:   make(chan events.Event, queueSize),
		workers: workers,
		timeout: 30 * time.Second,
	}
}

// StartNotificationWorker registers notification handlers and starts delivery.
func StartNotificationWorker(ctx context.Context, w *NotificationWorker, notificationService *service.NotificationService) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	w.Start(ctx)
}

// Start launches the delivery goroutines.
func (w *NotificationWorker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

func (w *NotificationWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for event := range w.queue {
		w.deliver(ctx, event)
	}
}

func (w *NotificationWorker) deliver(ctx context.Context, event events.Event) {
	// Delivery outlives request contexts; only the worker's own context bounds it.
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	if err := w.inner.Publish(deliverCtx, event); err != nil {
		w.logger.Warn("event delivery failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
}

// Publish enqueues the event without blocking.
func (w *NotificationWorker) Publish(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrWorkerStopped
	}
	select {
	case w.queue <- event:
		return nil
	default:
		w.logger.Warn("notification queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
		)
		return ErrQueueFull
	}
}

// Subscribe registers a handler on the inner dispatcher.
func (w *NotificationWorker) Subscribe(eventType events.EventType, handler events.EventHandler) {
	w.inner.Subscribe(eventType, handler)
}

// Stop closes the queue and waits for buffered events to drain or ctx to end.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
