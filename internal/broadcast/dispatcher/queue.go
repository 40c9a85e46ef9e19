package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"brigade/internal/broadcast/metrics"
)

// DefaultQueueSize is the queue capacity used when none is configured.
const DefaultQueueSize = 1024

// Handler processes one queued event.
type Handler interface {
	Dispatch(ctx context.Context, ev Event)
}

// Queue lets callers hand events off without waiting for I/O. Enqueue never blocks:
// when the buffer is full the event is dropped and counted. Run starts the workers;
// Close stops intake and returns once every queued event was dispatched.
type Queue struct {
	handler Handler
	inbox   chan Event
	workers int
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// QueueOption configures the Queue.
type QueueOption func(*Queue)

// WithQueueSize sets the buffer capacity.
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.inbox = make(chan Event, n)
		}
	}
}

// WithWorkers sets how many events are dispatched concurrently.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueLogger sets the logger.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithQueueMetrics sets the metrics collector.
func WithQueueMetrics(m *metrics.Metrics) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

// NewQueue creates a Queue in front of handler.
func NewQueue(handler Handler, opts ...QueueOption) *Queue {
	q := &Queue{
		handler: handler,
		inbox:   make(chan Event, DefaultQueueSize),
		workers: 1,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules ev. It reports false when the event was dropped.
func (q *Queue) Enqueue(ev Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.metrics.IncQueueDropped()
		return false
	}
	select {
	case q.inbox <- ev:
		q.metrics.SetQueueDepth(len(q.inbox))
		return true
	default:
		q.metrics.IncQueueDropped()
		q.logger.Warn("dispatch queue full, dropping event",
			"organization_id", ev.OrganizationID,
			"event_id", ev.EventID,
		)
		return false
	}
}

// Run dispatches queued events until Close is called and the queue is drained.
// Events carry ctx's values but not its cancellation, so shutdown drains the queue
// instead of aborting audit writes.
func (q *Queue) Run(ctx context.Context) {
	for range q.workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for ev := range q.inbox {
				q.metrics.SetQueueDepth(len(q.inbox))
				q.handler.Dispatch(context.WithoutCancel(ctx), ev)
			}
		}()
	}
	q.wg.Wait()
}

// Close stops accepting events. Run returns once the remaining events are dispatched.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.inbox)
}

// Len returns the number of events waiting.
func (q *Queue) Len() int {
	return len(q.inbox)
}
